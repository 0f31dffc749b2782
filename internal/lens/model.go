package lens

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// StatusLive is the default lifecycle state for a lens record.
const StatusLive = "Live"

// JSONMap persists a string-keyed map as a JSON text column.
type JSONMap map[string]string

// Value implements driver.Valuer for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan implements sql.Scanner for JSONMap.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var raw []byte
	switch typed := value.(type) {
	case []byte:
		raw = typed
	case string:
		raw = []byte(typed)
	default:
		return fmt.Errorf("lens: cannot scan %T into JSONMap", value)
	}
	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// Lens is the canonical metadata record for one camera effect.
type Lens struct {
	ID                      int64   `gorm:"column:id;primaryKey" json:"id"`
	UUID                    string  `gorm:"column:uuid;size:64;index" json:"uuid"`
	SnapcodeURL             string  `gorm:"column:snapcode_url;size:512" json:"snapcode_url"`
	CreatorDisplayName      string  `gorm:"column:creator_display_name;size:320;index" json:"creator_display_name"`
	Name                    string  `gorm:"column:name;size:320;index" json:"name"`
	Tags                    string  `gorm:"column:tags;type:text" json:"tags"`
	Status                  string  `gorm:"column:status;size:32" json:"status"`
	Deeplink                string  `gorm:"column:deeplink;size:512" json:"deeplink"`
	IconURL                 string  `gorm:"column:icon_url;size:512" json:"icon_url"`
	ThumbnailMediaURL       string  `gorm:"column:thumbnail_media_url;size:512" json:"thumbnail_media_url"`
	ThumbnailMediaPosterURL string  `gorm:"column:thumbnail_media_poster_url;size:512" json:"thumbnail_media_poster_url"`
	StandardMediaURL        string  `gorm:"column:standard_media_url;size:512" json:"standard_media_url"`
	StandardMediaPosterURL  string  `gorm:"column:standard_media_poster_url;size:512" json:"standard_media_poster_url"`
	CreatorSlug             string  `gorm:"column:creator_slug;size:190" json:"creator_slug"`
	ImageSequence           JSONMap `gorm:"column:image_sequence;type:text" json:"image_sequence"`
	IsWebSourced            bool    `gorm:"column:is_web_sourced;not null;default:false" json:"is_web_sourced"`
	IsMirrored              bool    `gorm:"column:is_mirrored;not null;default:false" json:"is_mirrored"`
}

// TableName provides the explicit table binding for GORM.
func (Lens) TableName() string {
	return "lenses"
}

// Complete reports whether the record carries every field required for a
// metadata write.
func (l Lens) Complete() bool {
	return l.ID != 0 && strings.TrimSpace(l.Name) != "" && strings.TrimSpace(l.CreatorDisplayName) != ""
}

// Unlock is the activation payload paired 1:1 with a Lens.
type Unlock struct {
	LensID            int64   `gorm:"column:lens_id;primaryKey" json:"lens_id"`
	LensURL           string  `gorm:"column:lens_url;size:512" json:"lens_url"`
	Signature         string  `gorm:"column:signature;type:text" json:"signature"`
	HintID            string  `gorm:"column:hint_id;size:190" json:"hint_id"`
	AdditionalHintIDs JSONMap `gorm:"column:additional_hint_ids;type:text" json:"additional_hint_ids"`
	IsWebSourced      bool    `gorm:"column:is_web_sourced;not null;default:false" json:"is_web_sourced"`
	IsMirrored        bool    `gorm:"column:is_mirrored;not null;default:false" json:"is_mirrored"`
}

// TableName provides the explicit table binding for GORM.
func (Unlock) TableName() string {
	return "unlocks"
}

// Complete reports whether the unlock carries its required fields.
func (u Unlock) Complete() bool {
	return u.LensID != 0 && strings.TrimSpace(u.LensURL) != ""
}

// User caches a creator identity observed during mirroring.
type User struct {
	CreatorSlug        string `gorm:"column:creator_slug;primaryKey;size:190" json:"creator_slug"`
	CreatorDisplayName string `gorm:"column:creator_display_name;size:320;index" json:"creator_display_name"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
