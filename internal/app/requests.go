package app

import "rabbithole/api/internal/model"

type (
	SaveItemInput   = model.SaveItemInput
	UpdateItemInput = model.UpdateItemInput
	NoteInput       = model.NoteInput
	HighlightInput  = model.HighlightInput
	DrawingInput    = model.DrawingInput
	BlobUpload      = model.BlobUpload
)
