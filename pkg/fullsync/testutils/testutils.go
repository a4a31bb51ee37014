/* Copyright 2025 Fullsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package testutils provides utilities used in tests
package testutils

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/fullsync/fullsync/pkg/fullsync/database"
	"github.com/fullsync/fullsync/pkg/fullsync/helpers"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// InitMemoryDB creates an in-memory SQLite database with the schema initialized
func InitMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()

	uuid := MustUUID(t)
	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid)
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	// the shared cache database lives as long as one connection is open
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	database.InitSchema(db)
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

// MustUUID generates a UUID and fails the test on error
func MustUUID(t *testing.T) string {
	uuid, err := helpers.GenUUID()
	if err != nil {
		t.Fatal(errors.Wrap(err, "Failed to generate UUID"))
	}
	return uuid
}

// MustExec fails the test if the given database query has error
func MustExec(t *testing.T, db *gorm.DB, message string) {
	t.Helper()

	if err := db.Error; err != nil {
		t.Fatalf("%s: %s", message, err.Error())
	}
}

// SetupTerms creates n terms, each with a term taxonomy in the given
// taxonomy. Term and term taxonomy ids start at firstID.
func SetupTerms(t *testing.T, db *gorm.DB, firstID int64, n int, taxonomy string) []database.TermTaxonomy {
	t.Helper()

	var ret []database.TermTaxonomy
	for i := 0; i < n; i++ {
		id := firstID + int64(i)

		term := database.Term{
			TermID: id,
			Name:   fmt.Sprintf("Term %d", id),
			Slug:   fmt.Sprintf("term-%d", id),
		}
		MustExec(t, db.Create(&term), "preparing term")

		tt := database.TermTaxonomy{
			TermTaxonomyID: id,
			TermID:         id,
			Taxonomy:       taxonomy,
			Description:    fmt.Sprintf("description %d", id),
		}
		MustExec(t, db.Create(&tt), "preparing term taxonomy")

		ret = append(ret, tt)
	}

	return ret
}

// SetupRelationship links the object to the term taxonomy
func SetupRelationship(t *testing.T, db *gorm.DB, objectID, termTaxonomyID int64, order int64) {
	t.Helper()

	r := database.TermRelationship{
		ObjectID:       objectID,
		TermTaxonomyID: termTaxonomyID,
		TermOrder:      order,
	}
	MustExec(t, db.Create(&r), "preparing term relationship")
}

// SetupPosts creates n published posts with ids starting at firstID
func SetupPosts(t *testing.T, db *gorm.DB, firstID int64, n int) []database.Post {
	t.Helper()

	var ret []database.Post
	for i := 0; i < n; i++ {
		id := firstID + int64(i)

		p := database.Post{
			ID:          id,
			PostAuthor:  1,
			PostTitle:   fmt.Sprintf("Post %d", id),
			PostContent: fmt.Sprintf("content %d", id),
			PostStatus:  "publish",
			PostType:    "post",
		}
		MustExec(t, db.Create(&p), "preparing post")

		ret = append(ret, p)
	}

	return ret
}

// SetupMeta creates a postmeta row
func SetupMeta(t *testing.T, db *gorm.DB, postID int64, key, value string) database.PostMeta {
	t.Helper()

	m := database.PostMeta{
		PostID:    postID,
		MetaKey:   key,
		MetaValue: value,
	}
	MustExec(t, db.Create(&m), "preparing postmeta")

	return m
}

// SetupOption creates an option row
func SetupOption(t *testing.T, db *gorm.DB, name, value string) database.Option {
	t.Helper()

	o := database.Option{
		OptionName:  name,
		OptionValue: value,
	}
	MustExec(t, db.Create(&o), "preparing option")

	return o
}

// HTTPDo makes an HTTP request and returns a response
func HTTPDo(t *testing.T, req *http.Request) *http.Response {
	t.Helper()

	hc := http.Client{}

	res, err := hc.Do(req)
	if err != nil {
		t.Fatal(errors.Wrap(err, "performing http request"))
	}

	return res
}

// MakeReq makes an HTTP request and returns a response
func MakeReq(endpoint string, method, path, data string) *http.Request {
	u := fmt.Sprintf("%s%s", endpoint, path)

	req, err := http.NewRequest(method, u, strings.NewReader(data))
	if err != nil {
		panic(errors.Wrap(err, "constructing http request"))
	}

	return req
}

// MakeFormReq makes an HTTP request with a form encoded body
func MakeFormReq(endpoint, method, path string, data url.Values) *http.Request {
	req := MakeReq(endpoint, method, path, data.Encode())
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return req
}
