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

// Package output prints full sync information on the terminal in a
// consistent manner
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/fullsync/fullsync/pkg/fullsync/status"
	"github.com/pkg/errors"
)

var (
	// ColorRed is a red foreground color
	ColorRed = color.New(color.FgRed)
	// ColorGreen is a green foreground color
	ColorGreen = color.New(color.FgGreen)
	// ColorYellow is a yellow foreground color
	ColorYellow = color.New(color.FgYellow)
	// ColorBlue is a blue foreground color
	ColorBlue = color.New(color.FgBlue)
	// ColorGray is a gray foreground color
	ColorGray = color.New(color.FgHiBlack)
)

const timeFormat = "Jan 2, 2006 3:04:05pm (MST)"

var indent = "  "

// Printer prints to a terminal
type Printer struct {
	w io.Writer
}

// New returns a printer writing to w, or to the colorable standard output
// if w is nil
func New(w io.Writer) *Printer {
	if w == nil {
		w = color.Output
	}

	return &Printer{w: w}
}

// Infof prints information with optional format verbs
func (p *Printer) Infof(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s %s", indent, ColorBlue.Sprint("•"), fmt.Sprintf(msg, v...))
}

// Successf prints a success message with optional format verbs
func (p *Printer) Successf(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s %s", indent, ColorGreen.Sprint("✔"), fmt.Sprintf(msg, v...))
}

// Warnf prints a warning message with optional format verbs
func (p *Printer) Warnf(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s %s", indent, ColorYellow.Sprint("•"), fmt.Sprintf(msg, v...))
}

// Errorf prints an error message with optional format verbs
func (p *Printer) Errorf(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s %s", indent, ColorRed.Sprint("⨯"), fmt.Sprintf(msg, v...))
}

// Plainf prints a plain message without any prefix symbol
func (p *Printer) Plainf(msg string, v ...interface{}) {
	fmt.Fprintf(p.w, "%s%s", indent, fmt.Sprintf(msg, v...))
}

func percent(sent, total int64) float64 {
	if total == 0 {
		return 100
	}

	return float64(sent) * 100 / float64(total)
}

// Status prints the state of the full sync and the progress of each module
func (p *Printer) Status(s status.Status) {
	if !s.IsStarted() {
		p.Infof("full sync has not been started\n")
		return
	}

	p.Infof("started at: %s\n", s.Started.Local().Format(timeFormat))
	if s.IsFinished() {
		p.Successf("finished at: %s (took %s)\n", s.Finished.Local().Format(timeFormat), s.Finished.Sub(s.Started).Round(time.Second))
	} else {
		p.Infof("sending: %d/%d (%.1f%%)\n", s.Sent(), s.Total(), percent(s.Sent(), s.Total()))
	}

	names := make([]string, 0, len(s.Progress))
	for name := range s.Progress {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mp := s.Progress[name]

		state := ColorGray.Sprint("pending")
		if mp.Finished {
			state = ColorGreen.Sprint("done")
		} else if mp.Sent > 0 {
			state = ColorBlue.Sprint("sending")
		}

		p.Plainf("%s%-20s %6d/%-6d %s\n", indent, name, mp.Sent, mp.Total, state)
		if mp.Error != "" {
			p.Errorf("%s%s\n", indent, mp.Error)
		}
	}
}

// JSON prints the given value as indented JSON
func (p *Printer) JSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding json")
	}

	fmt.Fprintf(p.w, "%s\n", b)

	return nil
}
