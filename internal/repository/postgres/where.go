package postgres

import (
	"strings"

	"github.com/jmoiron/sqlx"
)

// where accumulates AND-ed conditions written with ? placeholders and
// rebinds them to postgres $n bindvars on build.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) build() (string, []interface{}) {
	if len(w.conds) == 0 {
		return "", nil
	}
	return sqlx.Rebind(sqlx.DOLLAR, " WHERE "+strings.Join(w.conds, " AND ")), w.args
}
