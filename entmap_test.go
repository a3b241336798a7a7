package entmap_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/entmap/entmap"
	"github.com/entmap/entmap/clause"
	"github.com/entmap/entmap/internal/models"
	"github.com/entmap/entmap/logger"
	"github.com/entmap/entmap/mocks"
	"github.com/entmap/entmap/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu         sync.Mutex
	connects   atomic.Int32
	failFirst  bool
	gate       chan struct{}
	items      []interface{}
	extra      []map[string]interface{}
	queries    []*clause.Query
	inserted   []interface{}
	deleted    []interface{}
	findCalled bool
}

func (b *stubBackend) Connect(ctx context.Context) error {
	n := b.connects.Add(1)
	if b.gate != nil {
		<-b.gate
	}
	if b.failFirst && n == 1 {
		return errors.New("connection refused")
	}
	return nil
}

func (b *stubBackend) CreateSchema(ctx context.Context) error { return nil }

func (b *stubBackend) FindAll(ctx context.Context, q *clause.Query, extra *[]map[string]interface{}) ([]interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.findCalled = true
	b.queries = append(b.queries, q)
	if extra != nil {
		*extra = b.extra
	}
	return b.items, nil
}

func (b *stubBackend) Insert(ctx context.Context, q *clause.Query, item interface{}) error {
	b.inserted = append(b.inserted, item)
	return nil
}

func (b *stubBackend) Delete(ctx context.Context, q *clause.Query, item interface{}) error {
	b.deleted = append(b.deleted, item)
	return nil
}

func (b *stubBackend) Total(ctx context.Context, q *clause.Query) (int64, error) {
	return int64(len(b.items)), nil
}

func openStub(t *testing.T, backend *stubBackend, opts ...entmap.ConfigOption) *entmap.DB {
	t.Helper()

	reg := schema.NewRegistry(nil)
	models.Register(reg)
	db, err := entmap.Open(backend, reg, append([]entmap.ConfigOption{entmap.WithLogger(logger.Discard)}, opts...)...)
	require.NoError(t, err)
	return db
}

func TestOpen(t *testing.T) {
	reg := schema.NewRegistry(nil)
	_, err := entmap.Open(nil, reg)
	assert.True(t, errors.Is(err, entmap.ErrMissingBackend))

	_, err = entmap.Open(&stubBackend{}, nil)
	assert.True(t, errors.Is(err, entmap.ErrInvalidRegistry))

	type Node struct{ Parent *Node }
	schema.Define[Node](reg).
		Associate("Parent", schema.One(func(n *Node) **Node { return &n.Parent }), schema.Define[Node](reg), "Children")
	_, err = entmap.Open(&stubBackend{}, reg)
	assert.True(t, errors.Is(err, entmap.ErrInvalidRegistry))
	assert.True(t, errors.Is(err, schema.ErrUnknownReverseField))
	assert.Contains(t, err.Error(), "unknown field Children in node, referenced by node.Parent")
}

func TestConnectIsCoalesced(t *testing.T) {
	backend := &stubBackend{gate: make(chan struct{})}
	db := openStub(t, backend)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = db.Connect(context.Background())
		}(i)
	}

	close(backend.gate)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), backend.connects.Load())
	assert.True(t, db.Connected())

	require.NoError(t, db.Connect(context.Background()))
	assert.Equal(t, int32(1), backend.connects.Load(), "connect is idempotent")
}

func TestConnectRetry(t *testing.T) {
	backend := &stubBackend{failFirst: true}
	db := openStub(t, backend)

	assert.Error(t, db.Connect(context.Background()))
	assert.False(t, db.Connected())
	require.NoError(t, db.Connect(context.Background()))
	assert.Equal(t, int32(2), backend.connects.Load())
}

func TestWhereAndWhere(t *testing.T) {
	db := openStub(t, &stubBackend{})
	q := entmap.Query[models.User](db)

	q.Where(q.Eq(entmap.F("name"), entmap.V("a"))).AndWhere(q.Eq(entmap.F("age"), entmap.V(5)))

	expected := clause.Binary{
		Op:    clause.And,
		Left:  clause.Binary{Op: clause.Eq, Left: clause.Column{Path: "user.name"}, Right: clause.Literal{Value: "a"}},
		Right: clause.Binary{Op: clause.Eq, Left: clause.Column{Path: "user.age"}, Right: clause.Literal{Value: 5}},
	}
	assert.Equal(t, expected, q.Statement.Condition)
	assert.NoError(t, q.Error)
}

func TestLogicalFold(t *testing.T) {
	db := openStub(t, &stubBackend{})
	q := entmap.Query[models.User](db)
	a := q.Eq(entmap.F("id"), entmap.V(1))
	b := q.Eq(entmap.F("id"), entmap.V(2))
	c := q.Eq(entmap.F("id"), entmap.V(3))

	assert.Equal(t, clause.Binary{Op: clause.And, Left: clause.Binary{Op: clause.And, Left: a, Right: b}, Right: c}, q.And(a, b, c))
	assert.Equal(t, a, q.Or(a))
	assert.Nil(t, q.Or())

	q.OrWhere(a, b)
	assert.Equal(t, clause.Binary{Op: clause.Or, Left: a, Right: b}, q.Statement.Condition)
	q.Where(q.And())
	assert.Equal(t, clause.Binary{Op: clause.Or, Left: a, Right: b}, q.Statement.Condition)
}

func TestField(t *testing.T) {
	db := openStub(t, &stubBackend{})
	users := entmap.Query[models.User](db)
	admins := entmap.Query[models.Admin](db)

	results := []struct {
		Expr clause.Expression
		Path string
	}{
		{users.Field("userName"), "user.user_name"},
		{users.Field("groups"), "user.groups.id"},
		{users.Field("groups.name"), "user.groups.name"},
		{users.Field("Posts.Author.UserName"), "user.posts.author.user_name"},
		{users.Field("nickName"), "user.nick_name"},
		{admins.Field("id"), "admin.id"},
		{admins.Field("userName"), "admin._base.user_name"},
		{admins.Field("groups.name"), "admin._base.groups.name"},
	}

	for _, result := range results {
		assert.Equal(t, clause.Column{Path: result.Path}, result.Expr)
	}
	assert.NoError(t, users.Error)
	assert.NoError(t, admins.Error)

	users.Field("userName.first")
	assert.True(t, errors.Is(users.Error, entmap.ErrInvalidField))
}

func TestOperands(t *testing.T) {
	db := openStub(t, &stubBackend{})
	q := entmap.Query[models.Post](db)

	assert.Equal(t, clause.Literal{Value: 7}, q.Expr(entmap.E(&models.User{ID: 7})))
	assert.Equal(t, clause.Literal{}, q.Expr(nil))
	assert.Equal(t, clause.Literal{Value: "x"}, q.Expr(entmap.V("x")))
	sum := q.Sum(entmap.F("score"))
	assert.Equal(t, clause.Call{Func: "sum", Args: []clause.Expression{clause.Column{Path: "post.score"}}}, sum)
	assert.Equal(t, sum, q.Expr(entmap.X(sum)))
	assert.NoError(t, q.Error)

	q.Expr(entmap.E(&models.Membership{UserID: 1, GroupID: 2}))
	assert.True(t, errors.Is(q.Error, entmap.ErrNoSingleID))

	q = entmap.Query[models.Post](db)
	q.Where(q.Eq(entmap.F("author"), entmap.E((*models.User)(nil))))
	assert.NoError(t, q.Error)
	assert.Equal(t, clause.Binary{Op: clause.Eq, Left: clause.Column{Path: "post.author.id"}, Right: clause.Literal{}}, q.Statement.Condition)

	q = entmap.Query[models.Post](db)
	q.Expr(entmap.E(&struct{ ID int }{ID: 1}))
	assert.True(t, errors.Is(q.Error, entmap.ErrUnregisteredEntity))
}

func TestModifiers(t *testing.T) {
	db := openStub(t, &stubBackend{})
	q := entmap.Query[models.User](db)

	q.Distinct().Limit(10).Offset(20).
		SortBy("userName").
		SortByOf((*models.Group)(nil), "name", "DESC").
		GroupBy("id").
		GroupByOf(&models.Post{}, "score").
		Alias(q.Count(entmap.F("posts")), "posts")

	stmt := q.Statement
	require.NoError(t, q.Error)
	assert.True(t, stmt.Distinct)
	assert.Equal(t, 10, *stmt.Limit)
	assert.Equal(t, 20, stmt.Offset)
	assert.Equal(t, []clause.OrderByColumn{
		{Column: clause.Column{Path: "user.user_name"}},
		{Column: clause.Column{Path: "user.groups.name"}, Desc: true},
	}, stmt.Orders)
	assert.Equal(t, []clause.Expression{clause.Column{Path: "user.id"}, clause.Column{Path: "user.posts.score"}}, stmt.Groups)
	assert.Equal(t, "posts", stmt.Aliases[0].Name)
	assert.Equal(t, clause.Call{Func: "count", Args: []clause.Expression{clause.Column{Path: "user.posts.id"}}}, stmt.Aliases[0].Expr)

	q.SortByOf(&models.Membership{}, "role")
	assert.True(t, errors.Is(q.Error, entmap.ErrInvalidField), "membership is not joined to user")

	q = entmap.Query[models.User](db).SortBy("id", "sideways")
	assert.True(t, errors.Is(q.Error, entmap.ErrInvalidField))
}

func TestFinishers(t *testing.T) {
	ann := &models.User{ID: 1, UserName: "ann"}
	backend := &stubBackend{
		items: []interface{}{ann, &models.User{ID: 2}},
		extra: []map[string]interface{}{{"n": 3}, {"n": 4}},
	}
	db := openStub(t, backend)
	ctx := context.Background()
	repo := entmap.NewRepository[models.User](db)
	assert.Equal(t, "user", repo.Table().Name)

	extra := map[string]interface{}{}
	user, err := repo.FindOne(ctx, extra)
	require.NoError(t, err)
	assert.Same(t, ann, user)
	assert.Equal(t, map[string]interface{}{"n": 3}, extra)
	assert.Nil(t, backend.queries[0].Limit, "FindOne does not limit joined rows")

	var rows []map[string]interface{}
	users, err := repo.FindAll(ctx, &rows)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Len(t, rows, 2)

	total, err := repo.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	require.NoError(t, repo.Insert(ctx, ann))
	require.NoError(t, repo.Delete(ctx, ann))
	require.NoError(t, entmap.Query[models.User](db).Delete(ctx, nil))
	assert.Equal(t, []interface{}{ann}, backend.inserted)
	assert.Equal(t, []interface{}{ann, nil}, backend.deleted)

	backend.items = []interface{}{&models.Group{}}
	_, err = repo.FindAll(ctx, nil)
	assert.True(t, errors.Is(err, entmap.ErrInvalidData))

	backend.items = nil
	user, err = repo.FindOne(ctx, nil)
	assert.NoError(t, err)
	assert.Nil(t, user)
}

func TestChainErrorSkipsBackend(t *testing.T) {
	backend := &stubBackend{}
	db := openStub(t, backend)

	q := entmap.Query[models.User](db).SortBy("id", "sideways")
	_, err := q.FindAll(context.Background(), nil)
	assert.True(t, errors.Is(err, entmap.ErrInvalidField))
	assert.False(t, backend.findCalled)
	assert.Equal(t, int32(0), backend.connects.Load())

	type Unknown struct{}
	_, err = entmap.Query[Unknown](db).Total(context.Background())
	assert.True(t, errors.Is(err, entmap.ErrUnregisteredEntity))
}

func TestTraceAndDump(t *testing.T) {
	var buf bytes.Buffer
	backend := &stubBackend{}
	db := openStub(t, backend, entmap.WithLogger(logger.New(log.New(&buf, "", 0), logger.Config{LogLevel: logger.Info})))
	ctx := context.Background()

	_, err := entmap.NewRepository[models.Group](db).FindAll(ctx, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "connect")
	assert.Contains(t, buf.String(), "find all group")

	var dump bytes.Buffer
	require.NoError(t, db.DumpSchema(ctx, &dump))
	assert.True(t, strings.HasPrefix(dump.String(), "Schema dump\n\nTable: user\n"))
	assert.Contains(t, dump.String(), "Table: admin extends user")
	assert.Contains(t, dump.String(), "\tField: *user_id\n\tField: *group_id\n")

	require.NoError(t, db.Build(ctx))
	assert.Contains(t, buf.String(), "create schema")

	buf.Reset()
	quiet := openStub(t, backend)
	require.NoError(t, quiet.Debug().Connect(ctx))
	assert.Empty(t, buf.String())
}

func TestBackendErrors(t *testing.T) {
	backend := new(mocks.Backend)
	reg := schema.NewRegistry(nil)
	models.Register(reg)
	db, err := entmap.Open(backend, reg, entmap.WithLogger(logger.Discard))
	require.NoError(t, err)

	ctx := context.Background()
	boom := errors.New("boom")
	ann := &models.User{ID: 1}
	backend.On("Connect", ctx).Return(nil).Once()
	backend.On("FindAll", ctx, mock.AnythingOfType("*clause.Query"), mock.Anything).Return(nil, boom)
	backend.On("Total", ctx, mock.AnythingOfType("*clause.Query")).Return(int64(0), boom)
	backend.On("Insert", ctx, mock.AnythingOfType("*clause.Query"), ann).Return(nil)

	repo := entmap.NewRepository[models.User](db)
	_, err = repo.FindAll(ctx, nil)
	assert.True(t, errors.Is(err, boom))
	user, err := repo.FindOne(ctx, nil)
	assert.Nil(t, user)
	assert.True(t, errors.Is(err, boom))
	_, err = repo.Total(ctx)
	assert.True(t, errors.Is(err, boom))
	require.NoError(t, repo.Insert(ctx, ann))

	backend.AssertExpectations(t)
	backend.AssertNumberOfCalls(t, "Connect", 1)
}
