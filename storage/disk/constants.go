package disk

const (
	// PAGE_SIZE is the unit of all disk transfer, in bytes.
	PAGE_SIZE = 4096

	INVALID_PAGE_ID int64 = -1

	// DEFAULT_PAGE_CAPACITY is the number of page slots a fresh db file
	// starts with; the file doubles whenever it runs out.
	DEFAULT_PAGE_CAPACITY = 16
)
