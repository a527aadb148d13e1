package fieldsync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// CropStatus tracks a crop through its growing lifecycle.
type CropStatus string

const (
	CropPlanned        CropStatus = "PLANNED"
	CropPlanted        CropStatus = "PLANTED"
	CropGrowing        CropStatus = "GROWING"
	CropReadyToHarvest CropStatus = "READY_TO_HARVEST"
	CropHarvested      CropStatus = "HARVESTED"
	CropFailed         CropStatus = "FAILED"
)

// User mirrors the authenticated account. One row locally, never queued.
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
}

// Farm is owned by exactly one user.
type Farm struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	OwnerID   string     `json:"ownerId"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	Address   string     `json:"address,omitempty"`
	Region    string     `json:"region,omitempty"`
	Country   string     `json:"country,omitempty"`
	TotalArea float64    `json:"totalArea"`
	CreatedAt time.Time  `json:"createdAt"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
	NeedsSync bool       `json:"needsSync"`
}

// Field is owned by exactly one farm.
type Field struct {
	ID        string     `json:"id"`
	FarmID    string     `json:"farmId"`
	Name      string     `json:"name"`
	Area      float64    `json:"area"`
	SoilType  string     `json:"soilType,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	LastSync  *time.Time `json:"lastSync,omitempty"`
	NeedsSync bool       `json:"needsSync"`
}

// Crop is owned by exactly one field.
type Crop struct {
	ID                  string     `json:"id"`
	FieldID             string     `json:"fieldId"`
	CropType            string     `json:"cropType"`
	Variety             string     `json:"variety,omitempty"`
	PlantingDate        time.Time  `json:"plantingDate"`
	ExpectedHarvestDate time.Time  `json:"expectedHarvestDate"`
	ActualHarvestDate   *time.Time `json:"actualHarvestDate,omitempty"`
	Status              CropStatus `json:"status"`
	Yield               float64    `json:"yield"`
	CreatedAt           time.Time  `json:"createdAt"`
	LastSync            *time.Time `json:"lastSync,omitempty"`
	NeedsSync           bool       `json:"needsSync"`
}

// Photo may be associated with a farm, field, and/or crop. URI points at a
// local file until the binary has been uploaded.
type Photo struct {
	ID          string     `json:"id"`
	FarmID      string     `json:"farmId,omitempty"`
	FieldID     string     `json:"fieldId,omitempty"`
	CropID      string     `json:"cropId,omitempty"`
	URI         string     `json:"uri"`
	Description string     `json:"description,omitempty"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	TakenAt     time.Time  `json:"takenAt"`
	Uploaded    bool       `json:"uploaded"`
	NeedsSync   bool       `json:"needsSync"`
}

// Resource names a REST collection mirrored in the local store.
type Resource string

const (
	ResourceFarms  Resource = "farms"
	ResourceFields Resource = "fields"
	ResourceCrops  Resource = "crops"
	ResourcePhotos Resource = "photos"
)

// Valid reports whether the resource maps to a known collection.
func (r Resource) Valid() bool {
	switch r {
	case ResourceFarms, ResourceFields, ResourceCrops, ResourcePhotos:
		return true
	}
	return false
}

// Path returns the REST path for the collection.
func (r Resource) Path() string { return "/api/" + string(r) }

// Payload is the tagged union carried by sync queue entries. Each entity
// type declares which resource its payload belongs to, so the queue's data
// column has a compile-time-checked shape per resource.
type Payload interface {
	PayloadResource() Resource
}

func (*Farm) PayloadResource() Resource  { return ResourceFarms }
func (*Field) PayloadResource() Resource { return ResourceFields }
func (*Crop) PayloadResource() Resource  { return ResourceCrops }
func (*Photo) PayloadResource() Resource { return ResourcePhotos }

func encodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func decodePayload(r Resource, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var p Payload
	switch r {
	case ResourceFarms:
		p = &Farm{}
	case ResourceFields:
		p = &Field{}
	case ResourceCrops:
		p = &Crop{}
	case ResourcePhotos:
		p = &Photo{}
	default:
		return nil, fmt.Errorf("decode payload: %w: %q", ErrUnknownResource, r)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, err
	}
	return p, nil
}

// NewID returns a fresh client-assigned record identifier.
func NewID() string { return ulid.Make().String() }
