package world

import (
	"errors"

	"github.com/annel0/shopzones/internal/vec"
)

// EntityType определяет тип сущности
type EntityType uint16

const (
	EntityTypeUnknown EntityType = 0   // Неизвестный тип
	EntityTypePlayer  EntityType = 1   // Игрок
	EntityTypeObject  EntityType = 100 // Статический объект (рамки, стойки)
	EntityTypeItem    EntityType = 200 // Выброшенный предмет
	EntityTypeNPC     EntityType = 300 // Неигровой персонаж
	EntityTypeAnimal  EntityType = 301 // Животное
)

// Entity снимок сущности, находящейся в мире
type Entity struct {
	ID       uint64
	Type     EntityType
	Position vec.Vec3Float
}

// IsPlayer сообщает, является ли сущность игроком
func (e Entity) IsPlayer() bool {
	return e.Type == EntityTypePlayer
}

// ErrOutOfRange возвращается при обращении к клетке вне вертикальных границ мира
var ErrOutOfRange = errors.New("клетка вне границ мира")

// ErrEntityNotFound возвращается при удалении отсутствующей сущности
var ErrEntityNotFound = errors.New("сущность не найдена")

// View доступ к одному живому миру.
// Запись блоков и удаление сущностей допустимы только из эксклюзивного контекста планировщика.
type View interface {
	Name() string
	MinY() int
	MaxY() int

	BlockAt(pos vec.Vec3) (Block, error)
	SetBlock(pos vec.Vec3, b Block) error

	// EntitiesWithin возвращает сущности, клетки которых лежат в [min, max] включительно
	EntitiesWithin(min, max vec.Vec3) []Entity
	RemoveEntity(id uint64) error
}

// Access разрешает миры по имени
type Access interface {
	World(name string) (View, bool)
}

// MaterialScanner опциональная массовая выборка маркеров.
// Реализации, хранящие мир разреженно, могут обойти кубоид без чтения каждой клетки.
type MaterialScanner interface {
	ScanMaterials(min, max vec.Vec3, materials []Material, fn func(pos vec.Vec3, m Material)) error
}
