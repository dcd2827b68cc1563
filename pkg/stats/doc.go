/*
Package stats implements the cluster stats provider named in the scheduler
design: a poll loop against the backend driver's SnapshotCluster, with the
last good snapshot cached so a transient backend failure degrades to a
stale-but-usable view (Stale/Age on the returned ClusterStats) rather than
an error. Only a complete absence of any successful poll is reported as
ErrUnavailable.
*/
package stats
