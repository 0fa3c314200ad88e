package scene

import (
	"errors"
	"fmt"
)

const (
	// DefaultGridX and DefaultGridY are the grid scale of a new scene
	DefaultGridX = 0.025
	DefaultGridY = 0.025
)

var (
	ErrInvalidPiece = errors.New("invalid piece")
	ErrInvalidGrid  = errors.New("invalid grid scale")
)

// Position is expressed as fractions of the scene width and height.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// GridScale is the size of one grid cell as fractions of the canvas width and height.
type GridScale struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func DefaultGridScale() GridScale {
	return GridScale{X: DefaultGridX, Y: DefaultGridY}
}

// Validate checks that both values are positive fractions no larger than 1.
func (g GridScale) Validate() error {
	if g.X <= 0 || g.X > 1 || g.Y <= 0 || g.Y > 1 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidGrid, g.X, g.Y)
	}
	return nil
}

type BackgroundType string

const (
	BackgroundTypeImage BackgroundType = "image"
	BackgroundTypeVideo BackgroundType = "video"
)

// Background is replaced wholesale. The zero value means no background is set.
type Background struct {
	Type           BackgroundType `json:"type,omitempty"`
	ImageReference string         `json:"imageReference"`
}

func (b Background) IsSet() bool {
	return b.ImageReference != ""
}

type PieceKind string

const (
	PieceKindToken PieceKind = "token"
	PieceKindArea  PieceKind = "area"
)

// Size is expressed in grid cells.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type AreaShape string

const (
	AreaShapeCircle AreaShape = "circle"
	AreaShapeSquare AreaShape = "square"
	AreaShapeCone   AreaShape = "cone"
)

// Area holds the rendered attributes of a marked-area piece.
type Area struct {
	Shape AreaShape `json:"shape"`
	// Radius in grid cells
	Radius float64 `json:"radius"`
	Color  string  `json:"color"`
}

// Piece is a positioned token or marked area on the scene.
// Position is mutable through moves; everything else only through a full replace.
type Piece struct {
	ID       string    `json:"id"`
	Owner    string    `json:"owner"`
	Position Position  `json:"position"`
	Kind     PieceKind `json:"objectType"`
	Name     string    `json:"name"`
	Size     Size      `json:"size"`
	Image    string    `json:"imageReference,omitempty"`
	Area     *Area     `json:"area,omitempty"`
}

func (p *Piece) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPiece)
	}
	if p.Owner == "" {
		return fmt.Errorf("%w: piece %s has no owner", ErrInvalidPiece, p.ID)
	}
	switch p.Kind {
	case PieceKindToken:
		if p.Size.W <= 0 || p.Size.H <= 0 {
			return fmt.Errorf("%w: piece %s has non-positive size", ErrInvalidPiece, p.ID)
		}
	case PieceKindArea:
		if p.Area == nil {
			return fmt.Errorf("%w: area %s has no area attributes", ErrInvalidPiece, p.ID)
		}
		if p.Area.Radius <= 0 {
			return fmt.Errorf("%w: area %s has non-positive radius", ErrInvalidPiece, p.ID)
		}
	default:
		return fmt.Errorf("%w: piece %s has unknown kind %q", ErrInvalidPiece, p.ID, p.Kind)
	}
	return nil
}

// Copy returns a deep copy of the piece.
func (p *Piece) Copy() *Piece {
	c := *p
	if p.Area != nil {
		area := *p.Area
		c.Area = &area
	}
	return &c
}

// Rect is a screen-space rectangle in scene fractions.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.W && y >= r.Y && y <= r.Y+r.H
}

// Bounds computes the rendered rectangle of the piece for the given grid scale.
func (p *Piece) Bounds(grid GridScale) Rect {
	w, h := p.Size.W, p.Size.H
	if p.Kind == PieceKindArea && p.Area != nil {
		w, h = 2*p.Area.Radius, 2*p.Area.Radius
	}
	return Rect{
		X: p.Position.X,
		Y: p.Position.Y,
		W: w * grid.X,
		H: h * grid.Y,
	}
}
