package statserver

// SQL constants, kept separate from the query methods that use them,
// matching the teacher's server/queries.go split.

const queryListRuns = `SELECT id, created_at FROM runs ORDER BY created_at DESC LIMIT ?`

const queryRunMeasurements = `SELECT benchmark, pass, instructions FROM measurements WHERE run_id = ?`

const queryAllMeasurements = `SELECT benchmark, pass, instructions FROM measurements ORDER BY rowid`

const defaultRunsLimit = 50
const maxRunsLimit = 200
