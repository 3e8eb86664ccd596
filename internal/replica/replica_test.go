package replica_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sort"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/replica"
)

// The queries stick to SQL that sqlite and MySQL share, so a sqlite file
// with the replica's table layout stands in for it.
const schema = `
CREATE TABLE page (page_id INTEGER PRIMARY KEY, page_namespace INTEGER, page_title TEXT);
CREATE TABLE categorylinks (cl_from INTEGER, cl_to TEXT);
CREATE TABLE templatelinks (tl_from INTEGER, tl_from_namespace INTEGER, tl_namespace INTEGER, tl_title TEXT);
CREATE TABLE actor (actor_id INTEGER PRIMARY KEY, actor_user INTEGER, actor_name TEXT);
CREATE TABLE revision_userindex (rev_id INTEGER PRIMARY KEY, rev_actor INTEGER);

INSERT INTO page VALUES
	(1, 0, 'Eiffel_Tower'),
	(2, 0, 'Louvre'),
	(100, 14, 'Articles_with_unsourced_statements'),
	(101, 14, 'Towers_in_Paris'),
	(102, 14, 'Pages_using_infobox');
INSERT INTO categorylinks VALUES
	(100, 'Hidden_categories'),
	(102, 'Hidden_categories'),
	(1, 'Towers_in_Paris'),
	(1, 'Articles_with_unsourced_statements'),
	(2, 'Museums_in_Paris');
INSERT INTO templatelinks VALUES
	(1, 0, 10, 'Citation_needed'),
	(1, 0, 10, 'Cn'),
	(2, 0, 10, 'Cn'),
	(3, 4, 10, 'Cn'),
	(4, 0, 10, 'Infobox');
INSERT INTO actor VALUES (1, 7, 'Alice'), (2, NULL, '192.0.2.1'), (3, 8, 'Bob');
INSERT INTO revision_userindex VALUES (10, 1), (11, 2), (12, 3), (13, 1);
`

func newReplica(t *testing.T) *replica.Replica {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "replica.db"))
	require.NoError(t, err)
	_, err = db.Exec(schema)
	require.NoError(t, err)
	r := replica.New(db, zap.NewNop())
	t.Cleanup(func() { r.Close() })
	return r
}

func TestHiddenCategories(t *testing.T) {
	r := newReplica(t)
	hidden, err := r.HiddenCategories(context.Background(), "Hidden_categories")
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{
		"Articles_with_unsourced_statements": true,
		"Pages_using_infobox":                true,
	}, hidden)
}

func TestCategoriesForPages(t *testing.T) {
	r := newReplica(t)
	ms, err := r.CategoriesForPages(context.Background(), []int{1, 2, 3})
	require.NoError(t, err)
	sort.Slice(ms, func(i, j int) bool { return ms[i].Category < ms[j].Category })
	assert.Equal(t, []replica.Membership{
		{Category: "Articles_with_unsourced_statements", PageID: 1},
		{Category: "Museums_in_Paris", PageID: 2},
		{Category: "Towers_in_Paris", PageID: 1},
	}, ms)

	ms, err = r.CategoriesForPages(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ms)
}

func TestUnsourcedPageIDs(t *testing.T) {
	r := newReplica(t)
	ids, err := r.UnsourcedPageIDs(context.Background(), []string{"Citation needed", "Cn"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)
}

func TestRevisionUsers(t *testing.T) {
	r := newReplica(t)
	users, err := r.RevisionUsers(context.Background(), []int{10, 11, 12, 13, 99})
	require.NoError(t, err)
	sort.Strings(users)
	assert.Equal(t, []string{"Alice", "Alice", "Bob"}, users)
}
