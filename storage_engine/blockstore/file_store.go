package blockstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

/*
FileStore owns the backing files and the block identifier space.
It owns:
  - the os.File handles, one per backing file
  - reading/writing raw bytes at block offsets (ReadAt, WriteAt)
  - block allocation (tracking the next local block number per file)
  - write checksums, kept in memory for the blocks allocated or written
    since the store was opened, and verified whenever such a block is read

Allocation zero-fills the new block on disk, so a block that is read back
before its first write returns all zeroes.
*/

// fileDescriptor represents one open backing file.
type fileDescriptor struct {
	fileID    uint32
	filePath  string
	file      *os.File
	nextBlock int64 // next available local block number
}

// FileStore is a Store backed by one or more files on disk.
type FileStore struct {
	files     []*fileDescriptor
	blockSize int
	nextFile  int // round-robin cursor for Striped allocation
	allocated int64

	// xxhash of the last bytes written per block; guards against torn or
	// misdirected reads.
	checksums map[BID]uint64

	logger *zap.Logger
	mu     sync.RWMutex
}

// NewFileStore opens (or creates) numFiles backing files named
// blocks-<fileID>.dat under dir. blockSize is the raw block size in bytes.
func NewFileStore(dir string, numFiles int, blockSize int, logger *zap.Logger) (*FileStore, error) {
	if numFiles < 1 {
		return nil, fmt.Errorf("need at least one backing file, got %d", numFiles)
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &FileStore{
		blockSize: blockSize,
		checksums: make(map[BID]uint64),
		logger:    logger,
	}

	for i := 0; i < numFiles; i++ {
		path := filepath.Join(dir, fmt.Sprintf("blocks-%d.dat", i))
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			s.closeFiles()
			return nil, fmt.Errorf("failed to open block file %s: %w", path, err)
		}

		stat, err := file.Stat()
		if err != nil {
			file.Close()
			s.closeFiles()
			return nil, fmt.Errorf("failed to stat block file %s: %w", path, err)
		}

		s.files = append(s.files, &fileDescriptor{
			fileID:    uint32(i),
			filePath:  path,
			file:      file,
			nextBlock: stat.Size() / int64(blockSize),
		})
	}

	logger.Info("block store opened",
		zap.String("dir", dir),
		zap.Int("files", numFiles),
		zap.String("block_size", humanize.IBytes(uint64(blockSize))),
	)

	return s, nil
}

// BlockSize returns the raw block size in bytes.
func (s *FileStore) BlockSize() int {
	return s.blockSize
}

// NewBlock allocates a zero-filled block in the file picked by strategy.
func (s *FileStore) NewBlock(strategy AllocationStrategy) (BID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.files) == 0 {
		return 0, fmt.Errorf("block store is closed")
	}

	var fd *fileDescriptor
	switch strategy {
	case Striped:
		fd = s.files[s.nextFile]
		s.nextFile = (s.nextFile + 1) % len(s.files)
	default:
		fd = s.files[0]
	}

	local := fd.nextBlock
	fd.nextBlock++

	// Zero-fill so reads before the first write are well defined.
	empty := make([]byte, s.blockSize)
	offset := local * int64(s.blockSize)
	if _, err := fd.file.WriteAt(empty, offset); err != nil {
		fd.nextBlock--
		return 0, fmt.Errorf("failed to allocate block %d in file %d: %w", local, fd.fileID, err)
	}

	bid := MakeBID(fd.fileID, local)
	s.checksums[bid] = xxhash.Sum64(empty)
	s.allocated++

	s.logger.Debug("allocated block", zap.Int64("bid", int64(bid)), zap.Uint32("file", fd.fileID))
	return bid, nil
}

// Read fills image with the block's bytes and verifies its checksum if the
// store holds one for bid; blocks last written before the store was opened
// are read unverified.
func (s *FileStore) Read(bid BID, image []byte) *Request {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fd, err := s.descriptor(bid)
	if err != nil {
		return done(err)
	}
	if len(image) != s.blockSize {
		return done(fmt.Errorf("image size %d does not match block size %d", len(image), s.blockSize))
	}

	offset := bid.Local() * int64(s.blockSize)
	if _, err := fd.file.ReadAt(image, offset); err != nil {
		return done(fmt.Errorf("failed to read block %d: %w", int64(bid), err))
	}

	if want, ok := s.checksums[bid]; ok {
		if got := xxhash.Sum64(image); got != want {
			return done(fmt.Errorf("checksum mismatch on block %d: got %x, want %x", int64(bid), got, want))
		}
	}

	s.logger.Debug("read block", zap.Int64("bid", int64(bid)))
	return done(nil)
}

// Write persists image as the block's bytes and records its checksum.
func (s *FileStore) Write(bid BID, image []byte) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	fd, err := s.descriptor(bid)
	if err != nil {
		return done(err)
	}
	if len(image) != s.blockSize {
		return done(fmt.Errorf("image size %d does not match block size %d", len(image), s.blockSize))
	}

	offset := bid.Local() * int64(s.blockSize)
	if _, err := fd.file.WriteAt(image, offset); err != nil {
		return done(fmt.Errorf("failed to write block %d: %w", int64(bid), err))
	}

	s.checksums[bid] = xxhash.Sum64(image)

	s.logger.Debug("wrote block", zap.Int64("bid", int64(bid)))
	return done(nil)
}

// NumBlocks returns how many blocks have been allocated over the store's lifetime.
func (s *FileStore) NumBlocks() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allocated
}

// Sync flushes all backing files to disk.
func (s *FileStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, fd := range s.files {
		if err := fd.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync block file %s: %w", fd.filePath, err)
		}
	}
	return nil
}

// Close syncs and closes every backing file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, fd := range s.files {
		if err := fd.file.Sync(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to sync block file %s: %w", fd.filePath, err)
		}
		if err := fd.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close block file %s: %w", fd.filePath, err)
		}
	}
	s.files = nil
	return firstErr
}

// descriptor resolves a BID to its backing file. Callers hold s.mu.
func (s *FileStore) descriptor(bid BID) (*fileDescriptor, error) {
	fileID := bid.FileID()
	if int(fileID) >= len(s.files) {
		return nil, fmt.Errorf("block %d references unknown file %d", int64(bid), fileID)
	}
	fd := s.files[fileID]
	if bid.Local() >= fd.nextBlock {
		return nil, fmt.Errorf("block %d was never allocated", int64(bid))
	}
	return fd, nil
}

func (s *FileStore) closeFiles() {
	for _, fd := range s.files {
		fd.file.Close()
	}
	s.files = nil
}
