package chainstore

// Bucket names for each logical namespace. Each bucket holds one namespace;
// composite keys inside exitedBucket/finalizedBucket are built with exitKey.
var (
	transactionsBucket = []byte("transactions")
	headersBucket       = []byte("headers")
	metaBucket          = []byte("meta")
	exitsBucket         = []byte("exits")
	exitedBucket        = []byte("exited")
	finalizedBucket     = []byte("finalized")
	exitableBucket      = []byte("exitable")
	predicateBucket     = []byte("predicate")
	stateBucket         = []byte("state")
)

var allBuckets = [][]byte{
	transactionsBucket, headersBucket, metaBucket, exitsBucket,
	exitedBucket, finalizedBucket, exitableBucket, predicateBucket, stateBucket,
}

var latestBlockKey = []byte("latestblock")
var stateHeadKey = []byte("latest")

// exitKey builds the tuple key "{token}:{start}:{end}" used by the
// exited/finalized namespaces.
func exitKey(token, start, end []byte) []byte {
	out := make([]byte, 0, len(token)+len(start)+len(end)+2)
	out = append(out, token...)
	out = append(out, ':')
	out = append(out, start...)
	out = append(out, ':')
	out = append(out, end...)
	return out
}
