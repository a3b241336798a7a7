package schema_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/entmap/entmap/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type User struct {
	ID       int
	UserName string
	Groups   []*Group
	Posts    []*Post
}

type Group struct {
	ID    int
	Name  string
	Users []*User
}

type Post struct {
	ID        int
	Title     string
	CreatedAt time.Time
	Author    *User
}

type Admin struct {
	User
	Level int
}

type Membership struct {
	UserID  int
	GroupID int
	Role    string
}

func defineUser(reg *schema.Registry) *schema.Model[User] {
	return schema.Define[User](reg).
		ID("ID", schema.Prop(func(u *User) *int { return &u.ID })).
		Field("UserName", schema.Prop(func(u *User) *string { return &u.UserName }))
}

func defineGroup(reg *schema.Registry) *schema.Model[Group] {
	return schema.Define[Group](reg).
		ID("ID", schema.Prop(func(g *Group) *int { return &g.ID })).
		Field("Name", schema.Prop(func(g *Group) *string { return &g.Name }))
}

func newRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry(nil)
	users := defineUser(reg)
	groups := defineGroup(reg)
	posts := schema.Define[Post](reg).
		ID("ID", schema.Prop(func(p *Post) *int { return &p.ID })).
		Field("Title", schema.Prop(func(p *Post) *string { return &p.Title })).
		Field("CreatedAt", schema.Prop(func(p *Post) *time.Time { return &p.CreatedAt }))

	groups.Field("Users", schema.Many(func(g *Group) *[]*User { return &g.Users }))
	users.Associate("Groups", schema.Many(func(u *User) *[]*Group { return &u.Groups }), groups, "Users")
	users.Field("Posts", schema.Many(func(u *User) *[]*Post { return &u.Posts }))
	posts.Associate("Author", schema.One(func(p *Post) **User { return &p.Author }), users, "Posts")

	schema.Define[Admin](reg).
		Extends(users, func(a *Admin) interface{} { return &a.User }).
		Field("Level", schema.Prop(func(a *Admin) *int { return &a.Level }))

	require.NoError(t, reg.Seal())
	return reg
}

func tableOf[T any](t *testing.T, reg *schema.Registry) *schema.Table {
	t.Helper()
	table, ok := reg.TableOf(new(T))
	require.True(t, ok, "table should be registered")
	return table
}

func TestDefineIsIdempotent(t *testing.T) {
	reg := schema.NewRegistry(nil)
	first := defineUser(reg).Table()
	second := defineUser(reg).Table()

	if first != second {
		t.Fatalf("defining User twice should return the same table")
	}

	if len(second.Fields) != 2 {
		t.Errorf("fields should not be duplicated, got %v", len(second.Fields))
	}

	assert.Equal(t, "user", first.Name)
	assert.Equal(t, []string{"user"}, tableNames(reg.Tables()))
}

func tableNames(tables []*schema.Table) []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Name)
	}
	return names
}

func TestFieldNormalisation(t *testing.T) {
	reg := newRegistry(t)
	user := tableOf[User](t, reg)

	field := user.GetField("userName")
	require.NotNil(t, field)
	assert.Equal(t, "UserName", field.Name)
	assert.Equal(t, "user_name", field.InternalName)
	assert.Equal(t, schema.String, field.DataType)
	assert.True(t, user.HasField("user_name"))
	assert.False(t, user.HasField("password"))
}

func TestAssociateIsSymmetric(t *testing.T) {
	reg := newRegistry(t)
	a := tableOf[User](t, reg).GetField("Groups")
	b := tableOf[Group](t, reg).GetField("Users")

	assert.Same(t, b, a.AssociatedField)
	assert.Same(t, a, b.AssociatedField)
	assert.NotEqual(t, a.Leading, b.Leading, "exactly one side should be leading")
	assert.True(t, a.Leading)
	assert.True(t, a.IsArray)
	assert.True(t, b.IsArray)
}

func TestJoinTableIgnoresOrder(t *testing.T) {
	forward := newRegistry(t)

	reversed := schema.NewRegistry(nil)
	groups := defineGroup(reversed)
	users := defineUser(reversed)
	users.Field("Groups", schema.Many(func(u *User) *[]*Group { return &u.Groups }))
	groups.Associate("Users", schema.Many(func(g *Group) *[]*User { return &g.Users }), users, "Groups")
	require.NoError(t, reversed.Seal())

	for _, reg := range []*schema.Registry{forward, reversed} {
		assert.Equal(t, "group_users", tableOf[User](t, reg).GetField("Groups").JoinTable)
		assert.Equal(t, "group_users", tableOf[Group](t, reg).GetField("Users").JoinTable)
	}
}

func TestForeignKeyOwner(t *testing.T) {
	reg := newRegistry(t)
	author := tableOf[Post](t, reg).GetField("Author")
	posts := tableOf[User](t, reg).GetField("Posts")
	groups := tableOf[User](t, reg).GetField("Groups")

	assert.Same(t, author, author.ForeignKeyOwner())
	assert.Same(t, author, posts.ForeignKeyOwner())
	assert.Nil(t, groups.ForeignKeyOwner())
	assert.Empty(t, author.JoinTable)
}

func TestExtendsClonesIDField(t *testing.T) {
	reg := newRegistry(t)
	user := tableOf[User](t, reg)
	admin := tableOf[Admin](t, reg)

	require.NotNil(t, admin.IDField)
	assert.NotSame(t, user.IDField, admin.IDField)
	assert.Equal(t, user.IDField.Name, admin.IDField.Name)
	assert.Equal(t, user.IDField.DataType, admin.IDField.DataType)
	assert.Same(t, user, admin.Extends)
	assert.Contains(t, user.ExtendedBy, admin)
	assert.True(t, admin.IsA(user))
	assert.False(t, user.IsA(admin))

	a := &Admin{User: User{ID: 3}}
	assert.Equal(t, 3, admin.IDField.Get(a))
	require.NoError(t, admin.IDField.Set(a, int64(9)))
	assert.Equal(t, 9, a.ID)

	field, hops := admin.LookUpField("UserName")
	assert.Same(t, user.GetField("UserName"), field)
	assert.Equal(t, 1, hops)
	assert.Same(t, &a.User, admin.View(a, user))
}

func TestExtendsWithoutIDField(t *testing.T) {
	reg := schema.NewRegistry(nil)
	base := schema.Define[User](reg).
		Field("UserName", schema.Prop(func(u *User) *string { return &u.UserName }))
	schema.Define[Admin](reg).Extends(base, func(a *Admin) interface{} { return &a.User })

	err := reg.Seal()
	assert.True(t, errors.Is(err, schema.ErrNoIDField), "got %v", err)
}

func TestUnknownReverseField(t *testing.T) {
	reg := schema.NewRegistry(nil)
	users := defineUser(reg)
	groups := defineGroup(reg)
	users.Associate("Groups", schema.Many(func(u *User) *[]*Group { return &u.Groups }), groups, "Members")

	err := reg.Seal()
	require.Error(t, err)
	assert.True(t, errors.Is(err, schema.ErrUnknownReverseField))
	assert.Contains(t, err.Error(), "unknown field Members in group, referenced by user.Groups")
}

func TestDeferredReverseField(t *testing.T) {
	reg := schema.NewRegistry(nil)
	users := defineUser(reg)
	groups := defineGroup(reg)
	users.Associate("Groups", schema.Many(func(u *User) *[]*Group { return &u.Groups }), groups, "Users")
	assert.Error(t, reg.Err(), "unresolved association is reported before Seal")

	groups.Field("Users", schema.Many(func(g *Group) *[]*User { return &g.Users }))
	require.NoError(t, reg.Seal())

	a := users.Table().GetField("Groups")
	assert.Same(t, groups.Table().GetField("Users"), a.AssociatedField)
	assert.True(t, a.Leading)
	assert.Equal(t, "group_users", a.JoinTable)
}

func TestSealedRegistry(t *testing.T) {
	reg := newRegistry(t)
	assert.True(t, reg.Sealed())
	tables := reg.Tables()

	m := schema.Define[Membership](reg).
		Field("Role", schema.Prop(func(m *Membership) *string { return &m.Role }))
	assert.True(t, errors.Is(reg.Err(), schema.ErrRegistrySealed))
	assert.False(t, reg.HasTable(reflect.TypeOf(Membership{})), "sealed registry gains no table")
	assert.Equal(t, tables, reg.Tables())
	assert.Empty(t, m.Table().Fields)

	user := tableOf[User](t, reg)
	fields := len(user.Fields)
	schema.Define[User](reg).Field("Password", schema.Prop(func(u *User) *string { return &u.UserName }))
	assert.Same(t, user, schema.Define[User](reg).Table())
	assert.Len(t, user.Fields, fields)
}

func TestCoalition(t *testing.T) {
	reg := schema.NewRegistry(nil)
	m := schema.Define[Membership](reg).
		Field("UserID", schema.Prop(func(m *Membership) *int { return &m.UserID })).
		Field("GroupID", schema.Prop(func(m *Membership) *int { return &m.GroupID })).
		Field("Role", schema.Prop(func(m *Membership) *string { return &m.Role })).
		Coalition("UserID, GroupID")
	require.NoError(t, reg.Seal())

	table := m.Table()
	assert.Nil(t, table.IDField)
	assert.Len(t, table.IDFields, 2)
	assert.Equal(t, "user_id", table.IDFields[0].InternalName)
	assert.Equal(t, table.IDFields, table.PrimaryFields())

	bad := schema.NewRegistry(nil)
	schema.Define[Membership](bad).Coalition("UserID GroupID")
	assert.True(t, errors.Is(bad.Seal(), schema.ErrUnknownField))
}

func TestAccessorConversion(t *testing.T) {
	reg := newRegistry(t)
	post := tableOf[Post](t, reg)
	p := &Post{}

	require.NoError(t, post.GetField("ID").Set(p, int64(12)))
	require.NoError(t, post.GetField("Title").Set(p, []byte("hello")))
	require.NoError(t, post.GetField("CreatedAt").Set(p, "2024-03-01T10:00:00Z"))
	assert.Equal(t, 12, p.ID)
	assert.Equal(t, "hello", p.Title)
	assert.Equal(t, 2024, p.CreatedAt.Year())

	require.NoError(t, post.GetField("Title").Set(p, nil))
	assert.Equal(t, "", p.Title)

	err := post.GetField("ID").Set(p, "twelve")
	assert.True(t, errors.Is(err, schema.ErrInvalidValue))

	err = post.GetField("Author").Set(p, &Group{})
	assert.True(t, errors.Is(err, schema.ErrInvalidValue))
}

func TestManyAccessor(t *testing.T) {
	reg := newRegistry(t)
	groups := tableOf[User](t, reg).GetField("Groups")
	u := &User{}

	require.NoError(t, groups.Append(u, &Group{ID: 1}))
	require.NoError(t, groups.Append(u, &Group{ID: 2}))
	assert.Len(t, groups.Items(u), 2)

	require.NoError(t, groups.Set(u, []interface{}{&Group{ID: 5}}))
	require.Len(t, u.Groups, 1)
	assert.Equal(t, 5, u.Groups[0].ID)

	assert.Error(t, groups.Append(u, &User{}))
}

func TestDump(t *testing.T) {
	reg := newRegistry(t)

	var buf bytes.Buffer
	require.NoError(t, reg.Dump(&buf))

	expected := strings.Join([]string{
		"Schema dump",
		"",
		"Table: user",
		"\tField: *id",
		"\tField: user_name",
		"\tField: groups -> *group.users[] (join group_users)",
		"\tField: posts -> post.author[]",
		"",
		"Table: group",
		"\tField: *id",
		"\tField: name",
		"\tField: users -> user.groups[] (join group_users)",
		"",
		"Table: post",
		"\tField: *id",
		"\tField: title",
		"\tField: created_at",
		"\tField: author -> *user.posts",
		"",
		"Table: admin extends user",
		"\tField: *id",
		"\tField: level",
		"",
		"",
	}, "\n")
	assert.Equal(t, expected, buf.String())
}
