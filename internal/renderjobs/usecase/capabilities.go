package usecase

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/amankumarsingh77/render-worker/internal/models"
)

// optionalColumns may be absent from older job tables.
var optionalColumns = []string{models.ColumnUpdatedAt, models.ColumnWorkerID}

var missingColumnRe = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(optionalColumns))
	for _, c := range optionalColumns {
		out[c] = regexp.MustCompile(fmt.Sprintf(`(?i)column .*%s.* does not exist`, regexp.QuoteMeta(c)))
	}
	return out
}()

// Capabilities tracks which optional columns the job table accepts. A column
// is only ever switched off, never back on.
type Capabilities struct {
	mu       sync.Mutex
	disabled map[string]bool
}

func NewCapabilities() *Capabilities {
	return &Capabilities{disabled: make(map[string]bool)}
}

func (c *Capabilities) Supports(column string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.disabled[column]
}

// disable reports whether the column was enabled before the call.
func (c *Capabilities) disable(column string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disabled[column] {
		return false
	}
	c.disabled[column] = true
	return true
}

// shape drops unsupported columns from the patch and stamps updated_at when allowed.
func (c *Capabilities) shape(patch models.JobPatch, now time.Time) models.JobPatch {
	out := patch.Without(models.ColumnUpdatedAt)
	if c.Supports(models.ColumnUpdatedAt) {
		out[models.ColumnUpdatedAt] = now
	}
	for _, column := range optionalColumns {
		if !c.Supports(column) {
			out = out.Without(column)
		}
	}
	return out
}

// missingColumn finds the optional column an error complains about, if any.
func missingColumn(err error, patch models.JobPatch) (string, bool) {
	msg := err.Error()
	for _, column := range optionalColumns {
		if _, sent := patch[column]; !sent {
			continue
		}
		if missingColumnRe[column].MatchString(msg) {
			return column, true
		}
	}
	return "", false
}
