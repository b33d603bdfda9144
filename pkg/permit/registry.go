package permit

import (
	"context"
	"sync"
	"time"
)

type reservationTask struct {
	folio     Folio
	owner     OwnerID
	createdAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// registry keeps folio->task and owner->folios in step. Every mutation touches both maps under one lock.
type registry struct {
	mutex   sync.Mutex
	tasks   map[Folio]*reservationTask
	byOwner map[OwnerID]map[Folio]struct{}
}

func newRegistry() *registry {
	return &registry{
		tasks:   make(map[Folio]*reservationTask),
		byOwner: make(map[OwnerID]map[Folio]struct{}),
	}
}

func (reg *registry) add(task *reservationTask) bool {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	if _, exists := reg.tasks[task.folio]; exists {
		return false
	}
	reg.tasks[task.folio] = task
	folios, ok := reg.byOwner[task.owner]
	if !ok {
		folios = make(map[Folio]struct{})
		reg.byOwner[task.owner] = folios
	}
	folios[task.folio] = struct{}{}
	return true
}

// release removes folio and returns its task. Only one caller ever receives a given task.
func (reg *registry) release(folio Folio) (*reservationTask, bool) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	task, ok := reg.tasks[folio]
	if !ok {
		return nil, false
	}
	reg.removeLocked(task)
	return task, true
}

// releaseTask removes folio only while it is still bound to task.
func (reg *registry) releaseTask(task *reservationTask) bool {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	if reg.tasks[task.folio] != task {
		return false
	}
	reg.removeLocked(task)
	return true
}

func (reg *registry) removeLocked(task *reservationTask) {
	delete(reg.tasks, task.folio)
	if folios, ok := reg.byOwner[task.owner]; ok {
		delete(folios, task.folio)
		if len(folios) == 0 {
			delete(reg.byOwner, task.owner)
		}
	}
}

func (reg *registry) isCurrent(task *reservationTask) bool {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	return reg.tasks[task.folio] == task
}

func (reg *registry) owner(folio Folio) (OwnerID, bool) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	task, ok := reg.tasks[folio]
	if !ok {
		return OwnerID{}, false
	}
	return task.owner, true
}

func (reg *registry) createdAt(folio Folio) (time.Time, bool) {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	task, ok := reg.tasks[folio]
	if !ok {
		return time.Time{}, false
	}
	return task.createdAt, true
}

func (reg *registry) pending(owner OwnerID) []Folio {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	folios := reg.byOwner[owner]
	result := make([]Folio, 0, len(folios))
	for folio := range folios {
		result = append(result, folio)
	}
	return result
}

func (reg *registry) count() int {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	return len(reg.tasks)
}

func (reg *registry) drain() []*reservationTask {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	tasks := make([]*reservationTask, 0, len(reg.tasks))
	for _, task := range reg.tasks {
		tasks = append(tasks, task)
	}
	reg.tasks = make(map[Folio]*reservationTask)
	reg.byOwner = make(map[OwnerID]map[Folio]struct{})
	return tasks
}

// consistent reports whether both maps describe the same reservations.
func (reg *registry) consistent() bool {
	reg.mutex.Lock()
	defer reg.mutex.Unlock()
	indexed := 0
	for owner, folios := range reg.byOwner {
		if len(folios) == 0 {
			return false
		}
		for folio := range folios {
			task, ok := reg.tasks[folio]
			if !ok || task.owner != owner {
				return false
			}
			indexed++
		}
	}
	return indexed == len(reg.tasks)
}
