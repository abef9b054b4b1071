package store

import "rabbithole/api/internal/model"

// Rows are declared in model so clients can share them without linking the
// SQL drivers.
type (
	Rect           = model.Rect
	Position       = model.Position
	Item           = model.Item
	Note           = model.Note
	Highlight      = model.Highlight
	Drawing        = model.Drawing
	ItemGroup      = model.ItemGroup
	GroupItem      = model.GroupItem
	GroupWithItems = model.GroupWithItems
	ItemBundle     = model.ItemBundle
)
