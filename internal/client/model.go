// internal/client/model.go
//
// `clients` table row model.
//
// Context
// -------
// A Client is one agency customer (tenant).  Besides identity it stores the
// task-board integration settings used by the card synchronizer and the
// board provisioner:
//
//	CREATE TABLE clients (
//	    id               BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    name             VARCHAR(255) NOT NULL,
//	    owner_email      VARCHAR(255) NULL,
//	    trello_config    JSON         NULL,
//	    trello_board_id  VARCHAR(64)  NULL,
//	    trello_board_url VARCHAR(512) NULL,
//	    trello_lists     JSON         NULL,
//	    created_at       TIMESTAMP    NOT NULL DEFAULT CURRENT_TIMESTAMP
//	);
//
// Notes
// -----
// • JSON columns scan through TrelloConfig and BoardLists, which implement
//   sql.Scanner and driver.Valuer.
// • Nullable strings are COALESCEd to "" in queries; callers test for "".
// • Oxford commas, two spaces after periods.
package client

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record mirrors one row in the `clients` table.
type Record struct {
	ID             int64        `db:"id"`
	Name           string       `db:"name"`
	OwnerEmail     string       `db:"owner_email"`
	TrelloConfig   TrelloConfig `db:"trello_config"`
	TrelloBoardID  string       `db:"trello_board_id"`
	TrelloBoardURL string       `db:"trello_board_url"`
	TrelloLists    BoardLists   `db:"trello_lists"`
	CreatedAt      time.Time    `db:"created_at"`
}

// TrelloConfig is the per-client integration block.  APIKey and Token may
// hold `vault:` references.
type TrelloConfig struct {
	APIKey          string            `json:"api_key,omitempty"`
	Token           string            `json:"token,omitempty"`
	BoardID         string            `json:"board_id,omitempty"`
	ListID          string            `json:"list_id,omitempty"`
	DefaultListID   string            `json:"default_list_id,omitempty"`
	DefaultListName string            `json:"default_list_name,omitempty"`
	PriorityLabels  map[string]string `json:"priority_labels,omitempty"`
	TypeLabels      map[string]string `json:"type_labels,omitempty"`
	DefaultMembers  []string          `json:"default_members,omitempty"`
}

// Missing names the required credential fields that are blank, in the
// fixed order api_key, token, board_id.
func (c TrelloConfig) Missing() []string {
	var out []string
	if strings.TrimSpace(c.APIKey) == "" {
		out = append(out, "api_key")
	}
	if strings.TrimSpace(c.Token) == "" {
		out = append(out, "token")
	}
	if strings.TrimSpace(c.BoardID) == "" {
		out = append(out, "board_id")
	}
	return out
}

// TargetListID returns the explicitly configured list, preferring list_id
// over default_list_id.  Empty means the caller must resolve one.
func (c TrelloConfig) TargetListID() string {
	if c.ListID != "" {
		return c.ListID
	}
	return c.DefaultListID
}

// Scan implements sql.Scanner for the JSON column.  NULL yields the zero
// config.
func (c *TrelloConfig) Scan(src any) error {
	*c = TrelloConfig{}
	return scanJSON(src, c)
}

// Value implements driver.Valuer.
func (c TrelloConfig) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// BoardList is one column on a provisioned board.
type BoardList struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// BoardLists keeps the provisioned lists in template order.  An ordered
// slice rather than a map, so "first list" is well defined.
type BoardLists []BoardList

// ByName returns the id of the list called name.
func (l BoardLists) ByName(name string) (string, bool) {
	for _, bl := range l {
		if bl.Name == name {
			return bl.ID, true
		}
	}
	return "", false
}

// Scan implements sql.Scanner.
func (l *BoardLists) Scan(src any) error {
	*l = nil
	return scanJSON(src, l)
}

// Value implements driver.Valuer.  An empty set is stored as NULL.
func (l BoardLists) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func scanJSON(src, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("client: cannot scan %T into JSON column", src)
	}
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, dst)
}
