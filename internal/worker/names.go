package worker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/shaiso/patrol/internal/device"
)

// nameCache держит человекочитаемые имена полок и точек для логов
// и уведомлений. Обновляется в начале каждой task.
type nameCache struct {
	mu        sync.RWMutex
	shelves   map[string]device.Shelf
	locations map[string]string
}

func newNameCache() *nameCache {
	return &nameCache{
		shelves:   make(map[string]device.Shelf),
		locations: make(map[string]string),
	}
}

// refresh перечитывает карту робота. Ошибки не фатальны: остаётся старый кеш.
func (c *nameCache) refresh(ctx context.Context, robot device.Robot, logger *slog.Logger) {
	shelves, err := robot.GetShelves(ctx)
	if err != nil {
		logger.Warn("failed to load shelves", "error", err)
	}
	locations, err := robot.GetLocations(ctx)
	if err != nil {
		logger.Warn("failed to load locations", "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range shelves {
		c.shelves[s.ID] = s
	}
	for _, l := range locations {
		c.locations[l.ID] = l.Name
	}
}

// shelf возвращает полку из кеша.
func (c *nameCache) shelf(id string) (device.Shelf, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.shelves[id]
	return s, ok
}

// shelfName возвращает имя полки или её ID.
func (c *nameCache) shelfName(id string) string {
	if s, ok := c.shelf(id); ok && s.Name != "" {
		return s.Name
	}
	return id
}

// locationName возвращает имя точки или её ID.
func (c *nameCache) locationName(id string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if name, ok := c.locations[id]; ok && name != "" {
		return name
	}
	return id
}

// describe форматирует параметры шага: shelf_id и location_id дополняются именами.
func (c *nameCache) describe(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprint(params[k])
		switch k {
		case "shelf_id":
			if name := c.shelfName(v); name != v {
				v = fmt.Sprintf("%s(%s)", v, name)
			}
		case "location_id":
			if name := c.locationName(v); name != v {
				v = fmt.Sprintf("%s(%s)", v, name)
			}
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}
