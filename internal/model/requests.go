package model

type SaveItemInput struct {
	PageURL string  `json:"pageUrl" validate:"required,url"`
	Title   *string `json:"title" validate:"omitempty,max=300"`
}

// UpdateItemInput replaces the title; an absent or null title clears it.
type UpdateItemInput struct {
	Title *string `json:"title" validate:"omitempty,max=300"`
}

type NoteInput struct {
	ID       *string   `json:"id" validate:"omitempty,uuid"`
	Content  *string   `json:"content" validate:"omitempty,max=20000"`
	Position *Position `json:"position"`
	Rects    []Rect    `json:"rects" validate:"omitempty,max=256,dive"`
	Revision int64     `json:"revision" validate:"gte=0"`
}

type HighlightInput struct {
	ID       *string `json:"id" validate:"omitempty,uuid"`
	Text     *string `json:"text" validate:"omitempty,max=20000"`
	Rects    []Rect  `json:"rects" validate:"required,max=256,dive"`
	Revision int64   `json:"revision" validate:"gte=0"`
}

type DrawingInput struct {
	ID       *string `json:"id" validate:"omitempty,uuid"`
	BlobRef  string  `json:"blobRef" validate:"required,min=1,max=512"`
	Bounds   *Rect   `json:"bounds"`
	Revision int64   `json:"revision" validate:"gte=0"`
}

type BlobUpload struct {
	BlobRef string `json:"blobRef"`
	Size    int64  `json:"size"`
}
