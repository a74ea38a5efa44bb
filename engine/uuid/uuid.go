package uuid

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

const (
	// UUID_LENGTH is length of a UUID
	UUID_LENGTH = 16
	encodeUUID  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_."
	rawLength   = 12
)

var (
	_UUIDEncoding = base64.NewEncoding(encodeUUID).WithPadding(base64.NoPadding)

	// counter is the last 3 bytes of every id, seeded randomly so restarted processes do not collide within one second
	counter   uint32 = randomSeed()
	machineID        = readMachineID()
)

// GenUUID generates a new unique id: 4 bytes unix time, 3 bytes machine, 2 bytes pid, 3 bytes counter
func GenUUID() string {
	var b [rawLength]byte
	binary.BigEndian.PutUint32(b[:4], uint32(time.Now().Unix()))
	copy(b[4:7], machineID[:])
	pid := os.Getpid()
	b[7] = byte(pid >> 8)
	b[8] = byte(pid)
	i := atomic.AddUint32(&counter, 1)
	b[9] = byte(i >> 16)
	b[10] = byte(i >> 8)
	b[11] = byte(i)
	return _UUIDEncoding.EncodeToString(b[:])
}

// GenFixedUUID encodes up to 12 bytes as a UUID, left padding with zeros
func GenFixedUUID(b []byte) string {
	var raw [rawLength]byte
	if len(b) > rawLength {
		b = b[:rawLength]
	}
	copy(raw[rawLength-len(b):], b)
	return _UUIDEncoding.EncodeToString(raw[:])
}

func randomSeed() uint32 {
	var b [4]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return uint32(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint32(b[:])
}

func readMachineID() (id [3]byte) {
	hostname, err := os.Hostname()
	if err != nil {
		if _, err2 := io.ReadFull(rand.Reader, id[:]); err2 != nil {
			panic(fmt.Errorf("cannot get hostname: %v; %v", err, err2))
		}
		return
	}
	sum := md5.Sum([]byte(hostname))
	copy(id[:], sum[:])
	return
}
