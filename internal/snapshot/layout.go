// Package snapshot кодирует содержимое колонн зоны в отрезки (runs) и документы резервных копий.
package snapshot

import (
	"fmt"
	"sort"

	"github.com/annel0/shopzones/internal/world"
	"github.com/annel0/shopzones/internal/zone"
)

// Форматы документов
const (
	FormatColumnRLE = "column_rle_v1"
	FormatMarket    = "market_compressed_v1"
)

// Dictionary двусторонняя таблица материал <-> короткий код.
// Материалы вне таблицы кодируются полным именем.
type Dictionary struct {
	codes     map[world.Material]string
	materials map[string]world.Material
}

// NewDictionary строит словарь; коды должны быть уникальны
func NewDictionary(entries map[world.Material]string) Dictionary {
	d := Dictionary{
		codes:     make(map[world.Material]string, len(entries)),
		materials: make(map[string]world.Material, len(entries)),
	}
	for m, code := range entries {
		d.codes[m] = code
		d.materials[code] = m
	}
	return d
}

// Code возвращает код материала
func (d Dictionary) Code(m world.Material) string {
	if c, ok := d.codes[m]; ok {
		return c
	}
	return string(m)
}

// Material возвращает материал по коду. Код вне словаря принимается
// только как имя материала (A-Z, 0-9, _), иначе ok=false.
func (d Dictionary) Material(code string) (world.Material, bool) {
	if m, ok := d.materials[code]; ok {
		return m, true
	}
	if !materialName(code) {
		return "", false
	}
	return world.Material(code), true
}

func materialName(s string) bool {
	if s == "" || s[0] < 'A' || s[0] > 'Z' {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return false
		}
	}
	return true
}

// Contains сообщает, есть ли у материала короткий код
func (d Dictionary) Contains(m world.Material) bool {
	_, ok := d.codes[m]
	return ok
}

// Layout конфигурация кодека: какие высоты колонны читать и как называть материалы
type Layout struct {
	Name   string
	Format string
	// Offsets смещения от высоты якоря, по возрастанию
	Offsets    []int
	Dictionary Dictionary
	// Layered документ хранит по одному коду на смещение ("x,z:L0,L1,L2")
	Layered bool
	// Namespace префикс документов в хранилище
	Namespace string
}

// HasOffset сообщает, входит ли смещение в раскладку
func (l Layout) HasOffset(off int) bool {
	i := sort.SearchInts(l.Offsets, off)
	return i < len(l.Offsets) && l.Offsets[i] == off
}

// AnchorOffset смещение клетки якоря: ее маяк не сохраняется и не стирается
const AnchorOffset = 0

// Writable сообщает, что клетка со смещением off читается и перезаписывается кодеком
func (l Layout) Writable(off int) bool {
	return off != AnchorOffset && l.HasOffset(off)
}

// GeneralLayout весь охват колонны; клетка якоря остается на месте
func GeneralLayout() Layout {
	offsets := make([]int, 0, zone.ColumnHeight)
	for off := -zone.SpanBelow; off <= zone.SpanAbove; off++ {
		offsets = append(offsets, off)
	}
	return Layout{
		Name:    "general",
		Format:  FormatColumnRLE,
		Offsets: offsets,
		Dictionary: NewDictionary(map[world.Material]string{
			world.Stone:         "ST",
			world.Dirt:          "DI",
			world.GrassBlock:    "GR",
			world.Sand:          "SA",
			world.Water:         "WA",
			world.OakPlanks:     "OP",
			world.OakLog:        "OL",
			world.OakSlab:       "OS",
			world.Glass:         "GL",
			world.Chest:         "CH",
			world.Barrel:        "BA",
			world.Lantern:       "LA",
			world.Torch:         "TO",
			world.WhiteConcrete: "WC",
			world.GrayConcrete:  "GC",
			world.BambooMosaic:  "BM",
		}),
		Namespace: "backups",
	}
}

// MarketLayout три слоя торговой площадки: под маяком и два над ним
func MarketLayout() Layout {
	return Layout{
		Name:    "market",
		Format:  FormatMarket,
		Offsets: []int{-1, 1, 2},
		Dictionary: NewDictionary(map[world.Material]string{
			world.WhiteConcrete: "C",
			world.GrayConcrete:  "G",
			world.Beacon:        "B",
		}),
		Layered:   true,
		Namespace: "market_backups",
	}
}

// LayoutByName возвращает раскладку по имени ("" означает general)
func LayoutByName(name string) (Layout, error) {
	switch name {
	case "", "general":
		return GeneralLayout(), nil
	case "market":
		return MarketLayout(), nil
	default:
		return Layout{}, fmt.Errorf("неизвестная раскладка %q", name)
	}
}
