package world

import (
	"math/rand"

	"github.com/annel0/shopzones/internal/util"
	"github.com/annel0/shopzones/internal/vec"
)

// BiomeType представляет тип биома
type BiomeType int

const (
	BiomePlains BiomeType = iota
	BiomeDesert
	BiomeForest
	BiomeWater
)

// Пороговые значения шума высоты
const (
	ShallowWaterMax = 0.30 // Ниже - вода
	HillStart       = 0.60 // Выше - холмы
)

// Generator строит мир для локальной разработки: ландшафт из шума Перлина
// и несколько торговых площадок из маяков с точками телепорта.
type Generator struct {
	Seed       int64
	Size       int     // полуразмер области по x/z
	SeaLevel   int     // базовая высота поверхности
	Relief     int     // амплитуда рельефа
	NoiseScale float64 // масштаб шума высоты
	BiomeScale float64 // масштаб шума биомов
	Plots      int     // число площадок

	height *util.Noise
	biome  *util.Noise
}

// NewGenerator создает генератор с настройками по умолчанию
func NewGenerator(seed int64, size int) *Generator {
	if size <= 0 {
		size = 64
	}
	return &Generator{
		Seed:       seed,
		Size:       size,
		SeaLevel:   62,
		Relief:     12,
		NoiseScale: 0.05,
		BiomeScale: 0.02,
		Plots:      4,
		height:     util.NewNoise(seed),
		biome:      util.NewNoise(seed + 42),
	}
}

// Plot площадка, поставленная генератором
type Plot struct {
	Anchors  []vec.Vec3
	Teleport vec.Vec3
}

// SurfaceY возвращает высоту поверхности в колонне (x, z)
func (g *Generator) SurfaceY(x, z int) int {
	h := g.height.At(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
	return g.SeaLevel + int(h*float64(g.Relief)) - g.Relief/2
}

func (g *Generator) biomeAt(x, z int) BiomeType {
	h := g.height.At(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
	if h < ShallowWaterMax {
		return BiomeWater
	}
	b := g.biome.At(float64(x)*g.BiomeScale, float64(z)*g.BiomeScale)
	switch {
	case b < 0.35:
		return BiomeDesert
	case b > 0.65:
		return BiomeForest
	default:
		return BiomePlains
	}
}

func surfaceFor(b BiomeType) Material {
	switch b {
	case BiomeDesert:
		return Sand
	case BiomeWater:
		return Water
	default:
		return GrassBlock
	}
}

// Generate заполняет мир рельефом и площадками; возвращает поставленные площадки
func (g *Generator) Generate(w *MemoryWorld) ([]Plot, error) {
	rng := rand.New(rand.NewSource(g.Seed))

	for x := -g.Size; x <= g.Size; x++ {
		for z := -g.Size; z <= g.Size; z++ {
			top := g.SurfaceY(x, z)
			biome := g.biomeAt(x, z)

			// Мир разреженный: храним только приповерхностные слои
			if err := w.SetBlock(vec.Vec3{X: x, Y: top - 2, Z: z}, NewBlock(Stone)); err != nil {
				return nil, err
			}
			if err := w.SetBlock(vec.Vec3{X: x, Y: top - 1, Z: z}, NewBlock(Dirt)); err != nil {
				return nil, err
			}
			if err := w.SetBlock(vec.Vec3{X: x, Y: top, Z: z}, NewBlock(surfaceFor(biome))); err != nil {
				return nil, err
			}

			if biome == BiomeForest && rng.Float64() < 0.05 {
				for dy := 1; dy <= 4; dy++ {
					if err := w.SetBlock(vec.Vec3{X: x, Y: top + dy, Z: z}, NewBlock(OakLog)); err != nil {
						return nil, err
					}
				}
			}
		}
	}

	plots := make([]Plot, 0, g.Plots)
	for i := 0; i < g.Plots; i++ {
		p, err := g.placePlot(w, rng, i)
		if err != nil {
			return nil, err
		}
		plots = append(plots, p)
	}
	return plots, nil
}

// placePlot ставит прямоугольник маяков с полом, прилавком и точкой телепорта
func (g *Generator) placePlot(w *MemoryWorld, rng *rand.Rand, i int) (Plot, error) {
	width := 2 + rng.Intn(3)
	depth := 2 + rng.Intn(3)

	// Площадки разнесены по x, чтобы не слипаться в одну зону
	span := 2*g.Size - 8
	if span < 1 {
		span = 1
	}
	ox := -g.Size + 2 + (i*span)/max(g.Plots, 1)
	oz := -g.Size/2 + rng.Intn(max(g.Size, 1))
	anchorY := g.SurfaceY(ox, oz) + 1

	var plot Plot
	for dx := 0; dx < width; dx++ {
		for dz := 0; dz < depth; dz++ {
			anchor := vec.Vec3{X: ox + dx, Y: anchorY, Z: oz + dz}
			if err := w.SetBlock(anchor.Add(vec.Vec3{Y: -1}), NewBlock(WhiteConcrete)); err != nil {
				return Plot{}, err
			}
			if err := w.SetBlock(anchor, NewBlock(MarkerZone)); err != nil {
				return Plot{}, err
			}
			if (dx+dz)%2 == 0 {
				if err := w.SetBlock(anchor.Add(vec.Vec3{Y: 1}), NewBlock(Chest)); err != nil {
					return Plot{}, err
				}
			}
			plot.Anchors = append(plot.Anchors, anchor)
		}
	}

	plot.Teleport = vec.Vec3{X: ox + width/2, Y: anchorY, Z: oz - 3}
	if err := w.SetBlock(plot.Teleport, NewBlock(MarkerTeleport)); err != nil {
		return Plot{}, err
	}

	if rng.Float64() < 0.5 {
		w.SpawnEntity(EntityTypeItem, vec.Vec3Float{X: float64(ox) + 0.5, Y: float64(anchorY + 1), Z: float64(oz) + 0.5})
	}
	return plot, nil
}
