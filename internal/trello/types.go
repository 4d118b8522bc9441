package trello

// Credentials authenticate one client's calls.  They travel only as the
// `key` and `token` query parameters.
type Credentials struct {
	Key   string
	Token string
}

// Card is the subset of the provider's card object we keep.
type Card struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url,omitempty"`
	ShortURL string `json:"shortUrl,omitempty"`
	IDList   string `json:"idList,omitempty"`
	Due      string `json:"due,omitempty"`
	Closed   bool   `json:"closed,omitempty"`
}

// CardFields is the body of a card create.
type CardFields struct {
	Name      string   `json:"name"`
	Desc      string   `json:"desc,omitempty"`
	IDList    string   `json:"idList"`
	Due       string   `json:"due,omitempty"`
	IDLabels  []string `json:"idLabels,omitempty"`
	IDMembers []string `json:"idMembers,omitempty"`
}

// CardUpdate is a partial update.  Nil fields are not sent, so the
// provider leaves them untouched; a non-nil empty string is sent and
// clears the field.
type CardUpdate struct {
	Name   *string `json:"name,omitempty"`
	Desc   *string `json:"desc,omitempty"`
	Due    *string `json:"due,omitempty"`
	IDList *string `json:"idList,omitempty"`
	Closed *bool   `json:"closed,omitempty"`
}

// Empty reports whether no field is set.
func (u CardUpdate) Empty() bool {
	return u.Name == nil && u.Desc == nil && u.Due == nil && u.IDList == nil && u.Closed == nil
}

// Comment is the action created by AddComment.
type Comment struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// List is one column on a board.
type List struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Closed bool    `json:"closed,omitempty"`
	Pos    float64 `json:"pos,omitempty"`
}

// Board is the subset of the provider's board object we keep.
type Board struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	ShortURL string `json:"shortUrl,omitempty"`
	Closed   bool   `json:"closed,omitempty"`
}

// BoardSpec describes a board to create.  Lists are created in order after
// the board itself.
type BoardSpec struct {
	Name           string
	Desc           string
	OrganizationID string
	Lists          []string
}

// Member is the authenticated member returned by Ping.
type Member struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullName,omitempty"`
}

// Member roles accepted by AddMember.
const (
	RoleAdmin    = "admin"
	RoleNormal   = "normal"
	RoleObserver = "observer"
)
