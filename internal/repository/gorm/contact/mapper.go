package contactgorm

import (
	"strings"

	"github.com/oggyb/wa-notifier/internal/domain/contact"
)

func toDomain(m *ContactModel) *contact.Contact {
	c := &contact.Contact{
		ID:           m.ID,
		Phone:        m.Phone,
		Name:         m.Name,
		LastSeenAt:   m.LastSeenAt,
		MessageCount: m.MessageCount,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.Tags != "" {
		c.Tags = strings.Split(m.Tags, ",")
	}
	return c
}

func fromDomain(c *contact.Contact) *ContactModel {
	return &ContactModel{
		ID:           c.ID,
		Phone:        c.Phone,
		Name:         c.Name,
		Tags:         strings.Join(c.Tags, ","),
		LastSeenAt:   c.LastSeenAt,
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
