package model

import "time"

// Book is a catalog entry.
type Book struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Author      string    `json:"author,omitempty" yaml:"author,omitempty"`
	ISBN        string    `json:"isbn,omitempty" yaml:"isbn,omitempty"`
	Publisher   string    `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Year        int       `json:"publicationYear,omitempty" yaml:"publication_year,omitempty"`
	Genre       string    `json:"genre,omitempty" yaml:"genre,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CoverURL    string    `json:"coverUrl,omitempty" yaml:"cover_url,omitempty"`
	Copies      []Copy    `json:"copies,omitempty" yaml:"copies,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
}

// AvailableCopies returns the copies that can be reserved or borrowed.
func (b *Book) AvailableCopies() []Copy {
	var out []Copy
	for _, c := range b.Copies {
		if c.Status == CopyAvailable {
			out = append(out, c)
		}
	}
	return out
}

// BookInput is the writable subset of a Book, used for create and update.
type BookInput struct {
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	ISBN        string `json:"isbn,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Year        int    `json:"publicationYear,omitempty"`
	Genre       string `json:"genre,omitempty"`
	Description string `json:"description,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
}

// Copy is one physical item of a Book.
type Copy struct {
	ID       string     `json:"id" yaml:"id"`
	Code     string     `json:"code,omitempty" yaml:"code,omitempty"`
	Location string     `json:"location,omitempty" yaml:"location,omitempty"`
	Status   CopyStatus `json:"status" yaml:"status"`
	BookID   string     `json:"bookId,omitempty" yaml:"book_id,omitempty"`
	Book     *BookRef   `json:"book,omitempty" yaml:"book,omitempty"`
}

// Label returns the copy code, or a short form of the ID when no code is set.
func (c Copy) Label() string {
	if c.Code != "" {
		return c.Code
	}
	id := c.ID
	if len(id) > 6 {
		id = id[:6]
	}
	return "Copy " + id
}

// BookRef is the abbreviated book embedded in copies, reservations and loans.
type BookRef struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
}
