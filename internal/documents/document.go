package documents

import (
	"net/url"
	"path"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaOther MediaType = "other"
)

// Document is a flow record. Fields the migrator does not touch are kept in
// Extra so a replace writes them back unchanged.
type Document struct {
	ID       any    `bson:"_id,omitempty"`
	IsActive bool   `bson:"is_active,omitempty"`
	Flow     []Node `bson:"flow,omitempty"`
	Extra    bson.M `bson:",inline"`
}

type Node struct {
	Data  *Media `bson:"data,omitempty"`
	Extra bson.M `bson:",inline"`
}

// Media is an embedded media reference.
type Media struct {
	URL          string    `bson:"url,omitempty"`
	Type         MediaType `bson:"type,omitempty"`
	AttachmentID string    `bson:"attachment_id,omitempty"`
	ExternalID   string    `bson:"external_id,omitempty"`
	Extra        bson.M    `bson:",inline"`
}

func (m *Media) rewritable() bool {
	return m != nil && (m.Type == MediaImage || m.Type == MediaVideo)
}

// Filename returns the unescaped last path segment of a URL, without query or
// fragment. Stored urls may carry the name raw or escaped, so "my%20cat.jpg"
// and "my cat.jpg" yield the same filename.
func Filename(rawURL string) string {
	u := rawURL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	name := path.Base(u)
	if unescaped, err := url.PathUnescape(name); err == nil {
		return unescaped
	}
	return name
}

// ValidFilename rejects names that would match every url.
func ValidFilename(filename string) bool {
	return filename != "" && filename != "." && filename != "/"
}

// MatchesFilename reports whether rawURL ends with filename, ignoring case,
// in either its stored or its unescaped form. The old and new URLs may live
// under different hosts or prefixes, so only the filename is compared.
func MatchesFilename(rawURL, filename string) bool {
	if !ValidFilename(filename) {
		return false
	}
	name := strings.ToLower(filename)
	if strings.HasSuffix(strings.ToLower(rawURL), name) {
		return true
	}
	if unescaped, err := url.PathUnescape(rawURL); err == nil {
		return strings.HasSuffix(strings.ToLower(unescaped), name)
	}
	return false
}

// RewriteMedia points every image or video reference whose url ends with the
// basename of newURL at newURL and drops its stale attachment ids. It reports
// whether anything changed.
func (d *Document) RewriteMedia(newURL string) bool {
	return d.RewriteMatching(Filename(newURL), newURL)
}

// RewriteMatching is RewriteMedia for references ending with filename. It
// mirrors the server-side update issued by Store.RewriteReferences.
func (d *Document) RewriteMatching(filename, newURL string) bool {
	changed := false
	for i := range d.Flow {
		media := d.Flow[i].Data
		if !media.rewritable() || !MatchesFilename(media.URL, filename) {
			continue
		}
		if media.URL == newURL && media.AttachmentID == "" && media.ExternalID == "" {
			continue
		}
		media.URL = newURL
		media.AttachmentID = ""
		media.ExternalID = ""
		changed = true
	}
	return changed
}

// References reports whether any image or video reference still points at rawURL.
func (d *Document) References(rawURL string) bool {
	for _, node := range d.Flow {
		if node.Data.rewritable() && node.Data.URL == rawURL {
			return true
		}
	}
	return false
}
