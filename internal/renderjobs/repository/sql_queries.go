package repository

// Table and function names are substituted after identifier quoting.
const (
	claimJobQuery   = `SELECT * FROM %s($1)`
	getJobByIDQuery = `SELECT * FROM %s WHERE id = $1`
	updateJobQuery  = `UPDATE %s SET %s WHERE id = $%d`
	enqueueJobQuery = `INSERT INTO %s (payload, status, progress) VALUES ($1, $2, 0) RETURNING *`
)
