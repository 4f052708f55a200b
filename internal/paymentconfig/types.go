package paymentconfig

import (
	"time"

	"github.com/google/uuid"

	"github.com/carzavenue/backend/pkg/db/models"
	"github.com/carzavenue/backend/pkg/enums"
)

// UpdateInput overwrites every field of the configuration.
type UpdateInput struct {
	APIURL  string
	TestKey string
	LiveKey string
	Mode    string
}

// View is the API representation of the configuration. It is also the cached form.
type View struct {
	ID        uuid.UUID         `json:"id"`
	APIURL    string            `json:"apiUrl"`
	TestKey   string            `json:"testKey"`
	LiveKey   string            `json:"liveKey"`
	Mode      enums.PaymentMode `json:"mode"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ActiveKey returns the key for the currently selected mode.
func (v View) ActiveKey() string {
	if v.Mode == enums.PaymentModeLive {
		return v.LiveKey
	}
	return v.TestKey
}

func NewView(cfg models.PaymentConfig) View {
	return View{
		ID:        cfg.ID,
		APIURL:    cfg.APIURL,
		TestKey:   cfg.TestKey,
		LiveKey:   cfg.LiveKey,
		Mode:      cfg.Mode,
		UpdatedAt: cfg.UpdatedAt,
	}
}
