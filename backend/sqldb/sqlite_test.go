package sqldb_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/entmap/entmap"
	"github.com/entmap/entmap/backend/sqldb"
	"github.com/entmap/entmap/dialect"
	"github.com/entmap/entmap/internal/models"
	"github.com/entmap/entmap/logger"
	"github.com/entmap/entmap/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

type fixture struct {
	db            *entmap.DB
	ann, ben, cat *models.User
	admins, staff *models.Group
}

func openSQLite(t *testing.T) *entmap.DB {
	t.Helper()

	reg := schema.NewRegistry(nil)
	models.Register(reg)

	backend, err := sqldb.OpenDSN(reg, "sqlite", ":memory:", sqldb.WithLogger(logger.Discard), sqldb.WithPrepareStmt(16))
	require.NoError(t, err)
	// every connection of an in-memory database opens its own database
	backend.DB.SetMaxOpenConns(1)
	t.Cleanup(func() { backend.Close() })

	db, err := entmap.Open(backend, reg, entmap.WithLogger(logger.Discard))
	require.NoError(t, err)
	require.NoError(t, db.Build(context.Background()))
	return db
}

func seed(t *testing.T) fixture {
	t.Helper()

	ctx := context.Background()
	f := fixture{db: openSQLite(t)}
	f.admins = &models.Group{Name: "admins"}
	f.staff = &models.Group{Name: "staff"}
	for _, g := range []*models.Group{f.admins, f.staff} {
		require.NoError(t, entmap.NewRepository[models.Group](f.db).Insert(ctx, g))
	}

	f.ann = &models.User{UserName: "ann", Groups: []*models.Group{f.admins, f.staff}}
	f.ben = &models.User{UserName: "ben", Groups: []*models.Group{f.admins}}
	f.cat = &models.User{UserName: "cat"}
	for _, u := range []*models.User{f.ann, f.ben, f.cat} {
		require.NoError(t, entmap.NewRepository[models.User](f.db).Insert(ctx, u))
	}

	for _, p := range []*models.Post{
		{Title: "hello", Score: 3, CreatedAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Author: f.ann},
		{Title: "world", Score: 5, CreatedAt: time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), Author: f.ann},
		{Title: "bye", Score: 1, CreatedAt: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), Author: f.ben},
	} {
		require.NoError(t, entmap.NewRepository[models.Post](f.db).Insert(ctx, p))
	}
	return f
}

func names(users []*models.User) []string {
	values := make([]string, 0, len(users))
	for _, u := range users {
		values = append(values, u.UserName)
	}
	return values
}

func TestSQLiteGraph(t *testing.T) {
	f := seed(t)
	assert.Equal(t, []int{1, 2, 3}, []int{f.ann.ID, f.ben.ID, f.cat.ID})

	users, err := entmap.Query[models.User](f.db).SortBy("userName").FindAll(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"ann", "ben", "cat"}, names(users))

	ann, ben, cat := users[0], users[1], users[2]
	require.Len(t, ann.Groups, 2)
	require.Len(t, ben.Groups, 1)
	assert.ElementsMatch(t, []string{"admins", "staff"}, []string{ann.Groups[0].Name, ann.Groups[1].Name})
	assert.Equal(t, "admins", ben.Groups[0].Name)
	assert.Len(t, ann.Posts, 2)
	for _, p := range ann.Posts {
		assert.Same(t, ann, p.Author)
	}
	assert.Empty(t, cat.Groups)
	assert.Nil(t, cat.Profile)
}

func TestSQLiteConditions(t *testing.T) {
	f := seed(t)
	ctx := context.Background()

	q := entmap.Query[models.User](f.db)
	users, err := q.Where(q.Eq(entmap.F("groups.name"), entmap.V("staff"))).FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ann"}, names(users))

	q = entmap.Query[models.User](f.db)
	total, err := q.Where(q.Eq(entmap.F("groups"), entmap.E(f.admins))).Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	q = entmap.Query[models.User](f.db)
	users, err = q.Where(q.Eq(entmap.F("groups"), entmap.V(nil))).FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"cat"}, names(users))

	total, err = entmap.NewRepository[models.User](f.db).Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestSQLiteAggregates(t *testing.T) {
	f := seed(t)

	var extra []map[string]interface{}
	q := entmap.Query[models.Post](f.db)
	posts, err := q.GroupBy("author").
		Alias(q.Sum(entmap.F("score")), "total").
		SortBy("author").
		FindAll(context.Background(), &extra)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, []map[string]interface{}{{"total": int64(8)}, {"total": int64(1)}}, extra)
	assert.Equal(t, "ann", posts[0].Author.UserName)
}

func TestSQLiteInheritance(t *testing.T) {
	f := seed(t)
	ctx := context.Background()

	admin := &models.Admin{User: models.User{UserName: "root", Groups: []*models.Group{f.staff}}, Level: 2}
	require.NoError(t, entmap.NewRepository[models.Admin](f.db).Insert(ctx, admin))
	assert.Equal(t, 4, admin.ID)

	admins, err := entmap.NewRepository[models.Admin](f.db).FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "root", admins[0].UserName)
	assert.Equal(t, 2, admins[0].Level)
	require.Len(t, admins[0].Groups, 1)
	assert.Equal(t, "staff", admins[0].Groups[0].Name)

	users := entmap.NewRepository[models.User](f.db)
	total, err := users.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)

	require.NoError(t, users.Delete(ctx, &admin.User))
	total, err = users.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	total, err = entmap.NewRepository[models.Admin](f.db).Total(ctx)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestSQLiteDelete(t *testing.T) {
	f := seed(t)
	ctx := context.Background()

	require.NoError(t, entmap.NewRepository[models.User](f.db).Delete(ctx, f.ben))

	q := entmap.Query[models.Post](f.db)
	post, err := q.Where(q.Eq(entmap.F("title"), entmap.V("bye"))).FindOne(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.Nil(t, post.Author, "the reference to a deleted user is cleared")

	q = entmap.Query[models.Post](f.db)
	require.NoError(t, q.Where(q.Lt(entmap.F("score"), entmap.V(4))).Delete(ctx, nil))

	total, err := entmap.NewRepository[models.Post](f.db).Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestSQLiteOneToOne(t *testing.T) {
	f := seed(t)
	ctx := context.Background()

	profile := &models.Profile{Bio: "hi", User: f.ann}
	require.NoError(t, entmap.NewRepository[models.Profile](f.db).Insert(ctx, profile))
	assert.Len(t, profile.ID, 36, "string ids are UUIDs")

	q := entmap.Query[models.User](f.db)
	ann, err := q.Where(q.Eq(entmap.F("userName"), entmap.V("ann"))).FindOne(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, ann.Profile)
	assert.Equal(t, "hi", ann.Profile.Bio)
	assert.Same(t, ann, ann.Profile.User)
}

func TestSQLiteDuplicatedKey(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	repo := entmap.NewRepository[models.Profile](db)

	require.NoError(t, repo.Insert(ctx, &models.Profile{ID: "p-1", Bio: "first"}))
	err := repo.Insert(ctx, &models.Profile{ID: "p-1", Bio: "second"})
	assert.True(t, errors.Is(err, dialect.ErrDuplicatedKey), "got %v", err)

	profiles, err := repo.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "first", profiles[0].Bio)
}

func TestSQLiteAggregatedRowTakesColumnMinimums(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	ann := &models.User{UserName: "ann"}
	require.NoError(t, entmap.NewRepository[models.User](db).Insert(ctx, ann))
	first := &models.Post{Title: "zeta", Score: 1, Author: ann}
	for _, p := range []*models.Post{first, {Title: "alpha", Score: 9, Author: ann}} {
		require.NoError(t, entmap.NewRepository[models.Post](db).Insert(ctx, p))
	}

	q := entmap.Query[models.Post](db)
	posts, err := q.GroupBy("author").Alias(q.Count(entmap.F("id")), "n").FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, first.ID, posts[0].ID)
	assert.Equal(t, "alpha", posts[0].Title)
	assert.Equal(t, 1, posts[0].Score)
	assert.Equal(t, "ann", posts[0].Author.UserName)
}
