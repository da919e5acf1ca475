package collection

import (
	"github.com/looplj/dochooks/internal/hooks"
)

// Registration helpers append to the collection's callback lists in order.

func (c *Collection) BeforeInsert(fn hooks.BeforeFunc[hooks.InsertEvent]) {
	c.hooks.BeforeInsert.Add(fn)
}

func (c *Collection) BeforeUpdate(fn hooks.BeforeFunc[hooks.UpdateEvent]) {
	c.hooks.BeforeUpdate.Add(fn)
}

func (c *Collection) BeforeUpsert(fn hooks.BeforeFunc[hooks.UpsertEvent]) {
	c.hooks.BeforeUpsert.Add(fn)
}

func (c *Collection) BeforeRemove(fn hooks.BeforeFunc[hooks.RemoveEvent]) {
	c.hooks.BeforeRemove.Add(fn)
}

func (c *Collection) BeforeFind(fn hooks.ReadBeforeFunc) {
	c.hooks.BeforeFind.Add(fn)
}

func (c *Collection) BeforeFindOne(fn hooks.ReadBeforeFunc) {
	c.hooks.BeforeFindOne.Add(fn)
}

func (c *Collection) AfterInsert(fn hooks.AfterFunc[hooks.InsertedEvent]) {
	c.hooks.AfterInsert.Add(fn)
}

func (c *Collection) AfterUpdate(fn hooks.AfterFunc[hooks.UpdatedEvent]) {
	c.hooks.AfterUpdate.Add(fn)
}

func (c *Collection) AfterUpsert(fn hooks.AfterFunc[hooks.UpsertedEvent]) {
	c.hooks.AfterUpsert.Add(fn)
}

func (c *Collection) AfterRemove(fn hooks.AfterFunc[hooks.RemovedEvent]) {
	c.hooks.AfterRemove.Add(fn)
}

func (c *Collection) AfterFind(fn hooks.AfterFunc[hooks.FoundEvent]) {
	c.hooks.AfterFind.Add(fn)
}

func (c *Collection) AfterFindOne(fn hooks.AfterFunc[hooks.FoundOneEvent]) {
	c.hooks.AfterFindOne.Add(fn)
}
