package users

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"strings"

	"mawneychat/pkg/state/logger"
	"mawneychat/pkg/store/keys"
	"mawneychat/pkg/store/kv"
)

var palette = []string{
	"#1f6feb", "#8250df", "#bf3989", "#cf222e",
	"#bc4c00", "#4d2d00", "#1a7f37", "#0969da",
}

// Avatar resolves the picture for id: an uploaded avatar, then the
// configured asset, then a generated placeholder.
func (d *Directory) Avatar(id string) string {
	if d.kv != nil {
		v, err := d.kv.GetKey(keys.GenUserAvatarKey(id))
		switch {
		case err == nil && v != "":
			return v
		case err != nil && !kv.IsNotFound(err):
			logger.Warn("avatar_lookup_failed", "user", id, "error", err)
		}
	}
	d.mu.RLock()
	u, ok := d.byID[id]
	var configured, name string
	if ok {
		configured, name = u.Avatar, u.Name
	}
	d.mu.RUnlock()
	if configured != "" {
		return configured
	}
	if name == "" {
		name = id
	}
	return Placeholder(id, name)
}

// SetAvatar stores an uploaded avatar for id.
func (d *Directory) SetAvatar(id, data string) error {
	if _, ok := d.Get(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}
	if d.kv == nil {
		return d.ApplyProfile(id, data, nil)
	}
	return d.kv.SaveKey(keys.GenUserAvatarKey(id), []byte(data))
}

// Placeholder renders an SVG data URI with the initials of name on a
// colour derived from id.
func Placeholder(id, name string) string {
	h := fnv.New32a()
	h.Write([]byte(id))
	colour := palette[h.Sum32()%uint32(len(palette))]
	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="64" height="64"><rect width="64" height="64" rx="32" fill="%s"/><text x="32" y="40" font-family="sans-serif" font-size="24" fill="#fff" text-anchor="middle">%s</text></svg>`,
		colour, Initials(name),
	)
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

// Initials returns up to two upper-case initials of name.
func Initials(name string) string {
	fields := strings.Fields(name)
	var out []rune
	for _, f := range fields {
		out = append(out, []rune(strings.ToUpper(f))[0])
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}
