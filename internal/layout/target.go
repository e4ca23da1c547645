package layout

// Target fixes the ABI knobs of the linear-memory target. There is one
// production target (32-bit wasm); the struct exists so tests can shrink
// MaxAlign and so a 64-bit memory proposal would be a data change.
type Target struct {
	PtrSize  uint32 // reference width in bytes
	PtrAlign uint32
	MaxAlign uint32 // cap on natural field alignment
	DataBase uint32 // first byte the static planner may hand out
}

// Wasm32 is the default target: 32-bit pointers, fields naturally aligned
// up to 8 bytes, and the low kilobyte left unmapped so address zero never
// aliases a live object.
func Wasm32() Target {
	return Target{PtrSize: 4, PtrAlign: 4, MaxAlign: 8, DataBase: 1024}
}

const (
	// PageSize is the linear-memory page granularity of the target format.
	PageSize = 65536

	// HeapAlign is the rounding applied to the frozen plan's high-water
	// mark; the runtime allocator starts there and keeps the same grain.
	HeapAlign = 16
)

// Every heap object starts with an 8-byte header the allocator fills in:
// the class id at +0 and the payload byte size at +4. Pointers address the
// header, so user payload begins at HeaderSize and all field offsets are
// absolute and non-negative.
const (
	HeaderSize       = 8
	HeaderClassIDOff = 0
	HeaderSizeOff    = 4
)

// Resizable arrays keep three u32 slots behind the header; element data
// lives in a separate buffer object so growth never moves the array
// identity. Fixed arrays inline their elements at ObjectDataOff instead.
const (
	ArrayLengthOff = HeaderSize
	ArrayCapOff    = HeaderSize + 4
	ArrayDataOff   = HeaderSize + 8
	ArraySize      = HeaderSize + 12

	// ObjectDataOff is where string bytes, fixed-array elements and the
	// first class field land.
	ObjectDataOff = HeaderSize
)

// Class ids identify object shapes to the runtime. Built-in shapes take
// the low ids; user classes are numbered from FirstUserClassID in
// declaration order.
const (
	ClassIDInvalid = 0
	ClassIDString  = 1
	ClassIDArray   = 2 // resizable array header object
	ClassIDBuffer  = 3 // backing storage of a resizable array
	ClassIDFixed   = 4 // fixed array, elements inline

	FirstUserClassID = 8
)
