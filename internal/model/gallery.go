package model

import "time"

// GalleryImage is one entry in a gallery's ordered image list. Alt text is
// filled in later by the admin UI; the pipeline always writes it empty.
type GalleryImage struct {
	Key string `json:"key"`
	Alt string `json:"alt"`
}

// Gallery is the destination record for legacy-source jobs. Only the image
// list is touched by this core; everything else belongs to the admin CRUD
// layer.
type Gallery struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Images    []GalleryImage `json:"images"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
