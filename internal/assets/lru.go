package assets

import (
	"container/list"

	"github.com/dotcypress/fxcore"
)

// spriteCache is a fixed-capacity LRU cache of sprite descriptors,
// container/list paired with an index map.
type spriteCache struct {
	capacity int
	ll       *list.List
	index    map[fxcore.SpriteID]*list.Element
}

type cacheEntry struct {
	id     fxcore.SpriteID
	sprite fxcore.Sprite
}

func newSpriteCache(capacity int) *spriteCache {
	return &spriteCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[fxcore.SpriteID]*list.Element),
	}
}

func (c *spriteCache) get(id fxcore.SpriteID) (fxcore.Sprite, bool) {
	elem, ok := c.index[id]
	if !ok {
		return fxcore.Sprite{}, false
	}
	c.ll.MoveToFront(elem)
	return elem.Value.(*cacheEntry).sprite, true
}

func (c *spriteCache) put(id fxcore.SpriteID, sprite fxcore.Sprite) {
	if elem, ok := c.index[id]; ok {
		elem.Value.(*cacheEntry).sprite = sprite
		c.ll.MoveToFront(elem)
		return
	}
	if c.ll.Len() >= c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.index, oldest.Value.(*cacheEntry).id)
		}
	}
	elem := c.ll.PushFront(&cacheEntry{id: id, sprite: sprite})
	c.index[id] = elem
}

func (c *spriteCache) clear() {
	c.ll.Init()
	c.index = make(map[fxcore.SpriteID]*list.Element)
}
