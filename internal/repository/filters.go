package repository

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/unidata/internal/domain"
)

// whereBuilder accumulates positional conditions.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(format, len(w.args)))
}

func (w *whereBuilder) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *whereBuilder) next() int { return len(w.args) + 1 }

// paged returns the LIMIT/OFFSET tail numbered after the conditions, with the full argument list.
func (w *whereBuilder) paged(limit, offset int) (string, []any) {
	limit, offset = normalizePage(limit, offset)
	args := make([]any, 0, len(w.args)+2)
	args = append(append(args, w.args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", w.next(), w.next()+1), args
}

func uploadLogWhere(filter domain.UploadLogFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.UploaderID != nil {
		w.add("user_id = $%d", *filter.UploaderID)
	}
	if filter.Status != "" {
		w.add("status = $%d", string(filter.Status))
	}
	return w
}

func recordWhere(filter domain.RecordFilter) *whereBuilder {
	w := &whereBuilder{}
	if filter.Family != "" {
		w.add("data_type = $%d", string(filter.Family))
	}
	if filter.Year != 0 {
		w.add("year = $%d", filter.Year)
	}
	if filter.College != "" {
		w.add("college = $%d", filter.College)
	}
	if filter.Department != "" {
		w.add("department = $%d", filter.Department)
	}
	if filter.UploadLogID != uuid.Nil {
		w.add("upload_log_id = $%d", filter.UploadLogID)
	}
	return w
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
