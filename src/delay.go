package brutefir

/*------------------------------------------------------------------
 *
 * Purpose:	Per-channel integer-sample delay buffer.
 *
 *		A ring of period_size + maxdelay samples with separate
 *		read and write heads.  Each call consumes one partition
 *		of samples from the caller's buffer and replaces it with
 *		the delayed signal.  The delay can change between calls;
 *		the change takes effect over the following partition by
 *		moving the read head, clamped to [0, maxdelay].
 *
 *		Samples are opaque byte groups; the caller supplies the
 *		sample size and the stride between consecutive samples
 *		(1 for planar regions, open_channels for interleaved).
 *
 *---------------------------------------------------------------*/

type delaybuffer_t struct {
	ring        []byte
	ring_len    int /* in samples */
	period      int
	sample_size int
	maxdelay    int
	curdelay    int
	writepos    int /* sample index of next write */
}

/* initdelay is applied from the first call; maxdelay bounds all later
   changes. A nil buffer is returned when maxdelay is negative, which
   callers treat as "no delay handling on this channel". */
func delay_allocate_buffer(period_size int, initdelay int, maxdelay int, sample_size int) *delaybuffer_t {
	if maxdelay < 0 {
		return nil
	}
	if initdelay < 0 {
		initdelay = 0
	}
	if initdelay > maxdelay {
		initdelay = maxdelay
	}
	var db = &delaybuffer_t{
		period:      period_size,
		ring_len:    period_size + maxdelay,
		sample_size: sample_size,
		maxdelay:    maxdelay,
		curdelay:    initdelay,
	}
	if db.ring_len < 1 {
		db.ring_len = 1
	}
	db.ring = make([]byte, db.ring_len*sample_size)
	return db
}

/* Consume period samples from buf (strided by sample_spacing samples,
   sample_size bytes each), emit the delayed signal into the same
   region. */
func delay_update(db *delaybuffer_t, buf []byte, sample_size int, sample_spacing int, newdelay int) {
	if db == nil {
		return
	}
	if newdelay < 0 {
		newdelay = 0
	}
	if newdelay > db.maxdelay {
		newdelay = db.maxdelay
	}
	db.curdelay = newdelay

	var ss = db.sample_size
	if sample_size != ss {
		perror("Delay buffer sample size mismatch: %d != %d.", sample_size, ss)
		bf_exit(BF_EXIT_OTHER)
	}
	var stride = sample_spacing * ss
	var pos = 0
	for n := 0; n < db.period && pos+ss <= len(buf); n++ {
		var w = db.writepos * ss
		copy(db.ring[w:w+ss], buf[pos:pos+ss])
		var r = db.writepos - db.curdelay
		if r < 0 {
			r += db.ring_len
		}
		copy(buf[pos:pos+ss], db.ring[r*ss:r*ss+ss])
		db.writepos++
		if db.writepos == db.ring_len {
			db.writepos = 0
		}
		pos += stride
	}
}

func delay_current(db *delaybuffer_t) int {
	if db == nil {
		return 0
	}
	return db.curdelay
}
