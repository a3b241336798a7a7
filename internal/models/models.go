package models

import (
	"time"

	"github.com/entmap/entmap/schema"
)

type User struct {
	ID       int
	UserName string
	Groups   []*Group
	Posts    []*Post
	Profile  *Profile
}

type Group struct {
	ID    int
	Name  string
	Users []*User
}

type Post struct {
	ID        int
	Title     string
	Score     int
	CreatedAt time.Time
	Author    *User
}

type Profile struct {
	ID   string
	Bio  string
	User *User
}

// Admin extends User
type Admin struct {
	User
	Level int
}

// Membership uses a coalition id
type Membership struct {
	UserID  int
	GroupID int
	Role    string
}

// Register declares every sample model
func Register(reg *schema.Registry) {
	users := schema.Define[User](reg).
		ID("ID", schema.Prop(func(u *User) *int { return &u.ID })).
		Field("UserName", schema.Prop(func(u *User) *string { return &u.UserName }))

	groups := schema.Define[Group](reg).
		ID("ID", schema.Prop(func(g *Group) *int { return &g.ID })).
		Field("Name", schema.Prop(func(g *Group) *string { return &g.Name })).
		Field("Users", schema.Many(func(g *Group) *[]*User { return &g.Users }))

	posts := schema.Define[Post](reg).
		ID("ID", schema.Prop(func(p *Post) *int { return &p.ID })).
		Field("Title", schema.Prop(func(p *Post) *string { return &p.Title })).
		Field("Score", schema.Prop(func(p *Post) *int { return &p.Score })).
		Field("CreatedAt", schema.Prop(func(p *Post) *time.Time { return &p.CreatedAt }))

	profiles := schema.Define[Profile](reg).
		ID("ID", schema.Prop(func(p *Profile) *string { return &p.ID })).
		Field("Bio", schema.Prop(func(p *Profile) *string { return &p.Bio }))

	users.
		Associate("Groups", schema.Many(func(u *User) *[]*Group { return &u.Groups }), groups, "Users").
		Field("Posts", schema.Many(func(u *User) *[]*Post { return &u.Posts })).
		Field("Profile", schema.One(func(u *User) **Profile { return &u.Profile }))
	posts.Associate("Author", schema.One(func(p *Post) **User { return &p.Author }), users, "Posts")
	profiles.Associate("User", schema.One(func(p *Profile) **User { return &p.User }), users, "Profile")

	schema.Define[Admin](reg).
		Extends(users, func(a *Admin) interface{} { return &a.User }).
		Field("Level", schema.Prop(func(a *Admin) *int { return &a.Level }))

	schema.Define[Membership](reg).
		Field("UserID", schema.Prop(func(m *Membership) *int { return &m.UserID })).
		Field("GroupID", schema.Prop(func(m *Membership) *int { return &m.GroupID })).
		Field("Role", schema.Prop(func(m *Membership) *string { return &m.Role })).
		Coalition("UserID, GroupID")
}

// NewRegistry returns a sealed registry holding the sample models
func NewRegistry(namer schema.Namer) (*schema.Registry, error) {
	reg := schema.NewRegistry(namer)
	Register(reg)
	return reg, reg.Seal()
}
