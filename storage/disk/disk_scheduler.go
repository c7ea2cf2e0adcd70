package disk

import (
	"sync"
)

func NewScheduler(diskManager *Manager) *DiskScheduler {
	ds := &DiskScheduler{
		reqCh:       make(chan DiskReq, 100),
		pageQueue:   make(map[int64]chan DiskReq),
		diskManager: diskManager,
	}

	go ds.handleDiskReq()
	return ds
}

func NewRequest(pageId int64, data []byte, isWrite bool) DiskReq {
	respCh := make(chan DiskResp, 1)
	return DiskReq{
		PageId: pageId,
		Data:   data,
		Write:  isWrite,
		RespCh: respCh,
	}
}

func (ds *DiskScheduler) Schedule(req DiskReq) <-chan DiskResp {
	ds.reqCh <- req
	return req.RespCh
}

// AllocatePage and DeallocatePage pass through to the disk manager; the
// scheduler is the buffer pool's only handle on the disk.
func (ds *DiskScheduler) AllocatePage() int64 {
	return ds.diskManager.AllocatePage()
}

func (ds *DiskScheduler) DeallocatePage(pageId int64) {
	ds.diskManager.DeallocatePage(pageId)
}

func (ds *DiskScheduler) handleDiskReq() {
	for req := range ds.reqCh {
		ds.pageQueueMu.Lock()
		reqQueue, ok := ds.pageQueue[req.PageId]
		if !ok {
			reqQueue = make(chan DiskReq, 10)
			ds.pageQueue[req.PageId] = reqQueue
			go ds.pageWorker(req.PageId, reqQueue)
		}

		select {
		case reqQueue <- req:
			ds.pageQueueMu.Unlock()
		default:
			// Queue is full, so its worker is alive and draining; a
			// blocking send outside the lock cannot be orphaned.
			ds.pageQueueMu.Unlock()
			reqQueue <- req
		}
	}
}

func (ds *DiskScheduler) pageWorker(pageId int64, reqQueue chan DiskReq) {
	for {
		select {
		case req := <-reqQueue:
			ds.process(req)
		default:
			// Re-check emptiness under the lock before deregistering, so
			// the dispatcher can never enqueue onto a dead worker.
			ds.pageQueueMu.Lock()
			select {
			case req := <-reqQueue:
				ds.pageQueueMu.Unlock()
				ds.process(req)
			default:
				delete(ds.pageQueue, pageId)
				ds.pageQueueMu.Unlock()
				return
			}
		}
	}
}

func (ds *DiskScheduler) process(req DiskReq) {
	if req.Write {
		if err := ds.diskManager.WritePage(req.PageId, req.Data); err != nil {
			req.RespCh <- DiskResp{Success: false}
			return
		}
		req.RespCh <- DiskResp{Success: true}
		return
	}

	data, err := ds.diskManager.ReadPage(req.PageId)
	if err != nil {
		req.RespCh <- DiskResp{Success: false}
		return
	}
	req.RespCh <- DiskResp{Success: true, Data: data}
}

type DiskScheduler struct {
	reqCh       chan DiskReq
	diskManager *Manager

	pageQueue   map[int64]chan DiskReq
	pageQueueMu sync.Mutex
}

type DiskReq struct {
	PageId int64
	Data   []byte
	Write  bool
	RespCh chan DiskResp
}

type DiskResp struct {
	Success bool
	Data    []byte
}
