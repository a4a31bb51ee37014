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

package database

import (
	"time"
)

// SyncOption is a key/value row holding engine state such as the full sync
// status and the remote retry-after deadline
type SyncOption struct {
	Name      string `gorm:"column:name;primaryKey;type:varchar(191)"`
	Value     string `gorm:"column:value;type:text"`
	UpdatedAt time.Time
}

// TableName implements gorm's Tabler
func (SyncOption) TableName() string {
	return "sync_options"
}

// SyncLock is an advisory lease. ExpiresAt is in unix nanoseconds.
type SyncLock struct {
	Name      string `gorm:"column:name;primaryKey;type:varchar(191)"`
	ExpiresAt int64  `gorm:"column:expires_at;not null"`
}

// TableName implements gorm's Tabler
func (SyncLock) TableName() string {
	return "sync_locks"
}

// Term is a named term shared by one or more taxonomies
type Term struct {
	TermID    int64  `gorm:"column:term_id;primaryKey"`
	Name      string `gorm:"column:name;index"`
	Slug      string `gorm:"column:slug;index"`
	TermGroup int64  `gorm:"column:term_group;default:0"`
}

// TableName implements gorm's Tabler
func (Term) TableName() string {
	return "terms"
}

// TermTaxonomy associates a term with a taxonomy
type TermTaxonomy struct {
	TermTaxonomyID int64  `gorm:"column:term_taxonomy_id;primaryKey"`
	TermID         int64  `gorm:"column:term_id;index"`
	Taxonomy       string `gorm:"column:taxonomy;index;type:varchar(32)"`
	Description    string `gorm:"column:description"`
	Parent         int64  `gorm:"column:parent;default:0"`
	Count          int64  `gorm:"column:count;default:0"`
}

// TableName implements gorm's Tabler
func (TermTaxonomy) TableName() string {
	return "term_taxonomy"
}

// TermRelationship links an object to a term taxonomy
type TermRelationship struct {
	ObjectID       int64 `gorm:"column:object_id;primaryKey;autoIncrement:false"`
	TermTaxonomyID int64 `gorm:"column:term_taxonomy_id;primaryKey;autoIncrement:false"`
	TermOrder      int64 `gorm:"column:term_order;default:0"`
}

// TableName implements gorm's Tabler
func (TermRelationship) TableName() string {
	return "term_relationships"
}

// Post is a content record
type Post struct {
	ID          int64     `gorm:"column:id;primaryKey"`
	PostAuthor  int64     `gorm:"column:post_author;index"`
	PostTitle   string    `gorm:"column:post_title"`
	PostContent string    `gorm:"column:post_content"`
	PostStatus  string    `gorm:"column:post_status;index;type:varchar(20)"`
	PostType    string    `gorm:"column:post_type;index;type:varchar(20)"`
	PostDate    time.Time `gorm:"column:post_date"`
}

// TableName implements gorm's Tabler
func (Post) TableName() string {
	return "posts"
}

// PostMeta is an attribute value attached to a post
type PostMeta struct {
	MetaID    int64  `gorm:"column:meta_id;primaryKey"`
	PostID    int64  `gorm:"column:post_id;index"`
	MetaKey   string `gorm:"column:meta_key;index;type:varchar(191)"`
	MetaValue string `gorm:"column:meta_value"`
}

// TableName implements gorm's Tabler
func (PostMeta) TableName() string {
	return "postmeta"
}

// Comment is a comment left on a post
type Comment struct {
	CommentID       int64  `gorm:"column:comment_id;primaryKey"`
	CommentPostID   int64  `gorm:"column:comment_post_id;index"`
	CommentAuthor   string `gorm:"column:comment_author"`
	CommentContent  string `gorm:"column:comment_content"`
	CommentApproved string `gorm:"column:comment_approved;type:varchar(20)"`
}

// TableName implements gorm's Tabler
func (Comment) TableName() string {
	return "comments"
}

// Option is a site-wide setting
type Option struct {
	OptionID    int64  `gorm:"column:option_id;primaryKey"`
	OptionName  string `gorm:"column:option_name;uniqueIndex;type:varchar(191)"`
	OptionValue string `gorm:"column:option_value"`
	Autoload    string `gorm:"column:autoload;type:varchar(20);default:yes"`
}

// TableName implements gorm's Tabler
func (Option) TableName() string {
	return "options"
}
