package world

import "sync"

// Material идентификатор типа блока (имя материала)
type Material string

// Материалы, используемые зонами и генератором
const (
	Air           Material = "AIR"
	Stone         Material = "STONE"
	Dirt          Material = "DIRT"
	GrassBlock    Material = "GRASS_BLOCK"
	Sand          Material = "SAND"
	Water         Material = "WATER"
	OakPlanks     Material = "OAK_PLANKS"
	OakLog        Material = "OAK_LOG"
	OakSlab       Material = "OAK_SLAB"
	Glass         Material = "GLASS"
	Chest         Material = "CHEST"
	Barrel        Material = "BARREL"
	Lantern       Material = "LANTERN"
	Torch         Material = "TORCH"
	WhiteConcrete Material = "WHITE_CONCRETE"
	GrayConcrete  Material = "GRAY_CONCRETE"
	Beacon        Material = "BEACON"
	BambooMosaic  Material = "BAMBOO_MOSAIC"
)

// Маркеры: якорь колонны зоны и якорь точки телепорта
const (
	MarkerZone     = Beacon
	MarkerTeleport = BambooMosaic
)

// Block содержимое клетки: материал и его вариант (состояние блока)
type Block struct {
	Material Material
	Variant  string
}

// Empty возвращает пустую клетку
func Empty() Block {
	return Block{Material: Air}
}

// NewBlock создает блок с вариантом по умолчанию для материала
func NewBlock(m Material) Block {
	return Block{Material: m, Variant: DefaultVariant(m)}
}

// IsEmpty сообщает, пуста ли клетка
func (b Block) IsEmpty() bool {
	return b.Material == "" || b.Material == Air
}

// Normalize подставляет вариант по умолчанию, если он не задан
func (b Block) Normalize() Block {
	if b.Material == "" {
		b.Material = Air
	}
	if b.Variant == "" {
		b.Variant = DefaultVariant(b.Material)
	}
	return b
}

var (
	variantsMu sync.RWMutex
	variants   = map[Material]string{
		Chest:   "facing=north,type=single,waterlogged=false",
		Barrel:  "facing=up,open=false",
		OakSlab: "type=bottom,waterlogged=false",
		OakLog:  "axis=y",
		Lantern: "hanging=false,waterlogged=false",
		Water:   "level=0",
	}
)

// RegisterMaterial регистрирует вариант по умолчанию для материала
func RegisterMaterial(m Material, defaultVariant string) {
	variantsMu.Lock()
	variants[m] = defaultVariant
	variantsMu.Unlock()
}

// DefaultVariant возвращает вариант материала по умолчанию ("" для простых блоков)
func DefaultVariant(m Material) string {
	variantsMu.RLock()
	defer variantsMu.RUnlock()
	return variants[m]
}
