package mailbox

import "github.com/emersion/go-imap"

// BodyPart is a typed view of an IMAP body structure node: either a leaf
// carrying disposition/filename fields, or a container with children.
type BodyPart struct {
	ContentType string
	Disposition string
	Filename    string
	Children    []*BodyPart
}

// partFromStructure converts the wire body structure into a BodyPart tree.
func partFromStructure(bs *imap.BodyStructure) *BodyPart {
	if bs == nil {
		return nil
	}
	p := &BodyPart{
		ContentType: bs.MIMEType + "/" + bs.MIMESubType,
		Disposition: bs.Disposition,
	}
	if fn, ok := bs.DispositionParams["filename"]; ok {
		p.Filename = fn
	} else if name, ok := bs.Params["name"]; ok {
		p.Filename = name
	}
	for _, child := range bs.Parts {
		if cp := partFromStructure(child); cp != nil {
			p.Children = append(p.Children, cp)
		}
	}
	return p
}

// HasAttachment reports whether the part or any nested part is an
// attachment, flagged by disposition or by carrying a filename.
func (p *BodyPart) HasAttachment() bool {
	if p == nil {
		return false
	}
	if p.Disposition == "attachment" || p.Filename != "" {
		return true
	}
	for _, child := range p.Children {
		if child.HasAttachment() {
			return true
		}
	}
	return false
}
