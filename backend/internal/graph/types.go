package graph

import (
	"fmt"
	"strconv"
	"time"
)

// ============================================================================
// Nodes
// ============================================================================

// Variant is a node label. The values double as Neo4j labels.
type Variant string

const (
	VariantUser    Variant = "User"
	VariantCompany Variant = "Company"
	VariantSkill   Variant = "Skill"
)

// NodeRef identifies a node. Users and companies are keyed by ID, skills by
// their case-sensitive Name.
type NodeRef struct {
	Variant Variant `json:"variant"`
	ID      int64   `json:"id,omitempty"`
	Name    string  `json:"name,omitempty"`
}

func UserRef(id int64) NodeRef { return NodeRef{Variant: VariantUser, ID: id} }
func CompanyRef(id int64) NodeRef { return NodeRef{Variant: VariantCompany, ID: id} }
func SkillRef(name string) NodeRef { return NodeRef{Variant: VariantSkill, Name: name} }

func (r NodeRef) IsZero() bool { return r == NodeRef{} }
func (r NodeRef) String() string { return string(r.Variant) + ":" + r.idString() }
func (r NodeRef) entity() string { return lowerVariant[r.Variant] }

func (r NodeRef) idString() string {
	if r.Variant == VariantSkill {
		return r.Name
	}
	return strconv.FormatInt(r.ID, 10)
}

var lowerVariant = map[Variant]string{
	VariantUser:    "user",
	VariantCompany: "company",
	VariantSkill:   "skill",
}

// Less orders refs by variant, then id, then name. Every deterministic
// ordering in the engine goes through it.
func (r NodeRef) Less(o NodeRef) bool {
	if r.Variant != o.Variant {
		return r.Variant < o.Variant
	}
	if r.ID != o.ID {
		return r.ID < o.ID
	}
	return r.Name < o.Name
}

// Compare is Less in three-way form for slices.SortFunc.
func (r NodeRef) Compare(o NodeRef) int {
	switch {
	case r == o:
		return 0
	case r.Less(o):
		return -1
	default:
		return 1
	}
}

// User is a person in the graph. ID is assigned externally and never changes.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email,omitempty"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Headline  string    `json:"headline,omitempty"`
	Location  string    `json:"location,omitempty"`
	Industry  string    `json:"industry,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u *User) Ref() NodeRef { return UserRef(u.ID) }

// FullName joins first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// Company is an organisation users follow and work at.
type Company struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Industry    string    `json:"industry,omitempty"`
	Location    string    `json:"location,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (c *Company) Ref() NodeRef { return CompanyRef(c.ID) }

// Skill is keyed by its name.
type Skill struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *Skill) Ref() NodeRef { return SkillRef(s.Name) }

// Node is implemented by *User, *Company and *Skill.
type Node interface {
	Ref() NodeRef
}

// ============================================================================
// Edges
// ============================================================================

// EdgeType is a relationship type. The values double as Neo4j relationship types.
type EdgeType string

const (
	EdgeConnectedTo EdgeType = "CONNECTED_TO"
	EdgeFollows     EdgeType = "FOLLOWS"
	EdgeWorkedAt    EdgeType = "WORKED_AT"
	EdgeHasSkill    EdgeType = "HAS_SKILL"
	EdgeEndorsed    EdgeType = "ENDORSED"
)

// EdgeTypes lists every edge type in a stable order.
var EdgeTypes = []EdgeType{EdgeConnectedTo, EdgeFollows, EdgeWorkedAt, EdgeHasSkill, EdgeEndorsed}

// Multi reports whether the type records history, allowing several edges
// between the same pair. The other types hold at most one logical edge.
func (t EdgeType) Multi() bool {
	return t == EdgeWorkedAt || t == EdgeEndorsed
}

// Endpoints returns the node variants an edge of this type connects.
func (t EdgeType) Endpoints() (from, to Variant, ok bool) {
	switch t {
	case EdgeConnectedTo, EdgeEndorsed:
		return VariantUser, VariantUser, true
	case EdgeFollows, EdgeWorkedAt:
		return VariantUser, VariantCompany, true
	case EdgeHasSkill:
		return VariantUser, VariantSkill, true
	}
	return "", "", false
}

// Direction selects which adjacency index a neighbor lookup reads.
type Direction uint8

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// WorkProps are the properties of a WORKED_AT edge. A nil EndDate marks the
// current role.
type WorkProps struct {
	Position  string     `json:"position"`
	StartDate time.Time  `json:"startDate"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

// Current reports whether the role has no end date.
func (w *WorkProps) Current() bool { return w.EndDate == nil }

// Edge is a typed relationship. CreatedAt holds connectedAt, followedAt or
// endorsedAt depending on the type. Work is set for WORKED_AT, SkillName for
// ENDORSED, Endorsements for HAS_SKILL.
type Edge struct {
	ID           string     `json:"id"`
	Type         EdgeType   `json:"type"`
	From         NodeRef    `json:"from"`
	To           NodeRef    `json:"to"`
	CreatedAt    time.Time  `json:"createdAt"`
	Work         *WorkProps `json:"work,omitempty"`
	SkillName    string     `json:"skillName,omitempty"`
	Endorsements int        `json:"endorsements,omitempty"`
}

func (e Edge) String() string {
	return fmt.Sprintf("(%s)-[:%s]->(%s)", e.From, e.Type, e.To)
}

type edgeKey struct {
	typ  EdgeType
	from NodeRef
	to   NodeRef
}

type adjKey struct {
	node NodeRef
	typ  EdgeType
}

// Stats is a point-in-time count of nodes and edges.
type Stats struct {
	Users     int              `json:"users"`
	Companies int              `json:"companies"`
	Skills    int              `json:"skills"`
	Edges     map[EdgeType]int `json:"edges"`
}
