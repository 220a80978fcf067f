/*
Package filesystem wraps os.Stat and os.Open with retries for stale file
handle errors (ESTALE).

Network mounts (NFS, SMB) and removable drives under /media or /mnt can
return ESTALE while a catalog or thumbnail pass is reading them. The
wrappers retry only that error, with exponential backoff capped at
MaxBackoff; every other error is returned immediately.

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer f.Close()

Retries are counted in the photo_vault_filesystem_* Prometheus metrics,
labelled by operation.
*/
package filesystem
