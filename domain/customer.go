package domain

import (
	"strings"
	"time"
)

// Customer is an end prospect imported from an uploaded file.
type Customer struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ProductDemand string    `json:"productDemand"`
	Category      string    `json:"category"`
	Email         string    `json:"email"`
	SourceFile    string    `json:"sourceFile"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Ref returns the snapshot stored inside tasks.
func (c Customer) Ref() CustomerRef {
	return CustomerRef{
		ID:            c.ID,
		Name:          c.Name,
		ProductDemand: c.ProductDemand,
		Category:      c.Category,
		Email:         c.Email,
	}
}

// Description renders the customer for completion prompts.
func (c Customer) Description() string {
	var b strings.Builder
	b.WriteString(c.Name)
	if c.ProductDemand != "" {
		b.WriteString(" is interested in ")
		b.WriteString(c.ProductDemand)
	}
	if c.Category != "" {
		b.WriteString(" (category: ")
		b.WriteString(c.Category)
		b.WriteString(")")
	}
	return b.String()
}

// Representative is a sales agent. The record is owned by the user directory;
// tasks only keep Member copies.
type Representative struct {
	SchemaVersion int       `json:"schemaVersion"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Skillset      string    `json:"skillset,omitempty"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

const (
	RepresentativeActive   = "active"
	RepresentativeInactive = "inactive"
)

// Member returns the snapshot stored inside tasks.
func (r Representative) Member() Member {
	return Member{Name: r.Name, Email: r.Email, Skillset: r.Skillset}
}

// Active reports whether the representative can receive new assignments.
func (r Representative) Active() bool {
	return r.Status == "" || strings.EqualFold(r.Status, RepresentativeActive)
}
