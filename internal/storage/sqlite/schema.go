package sqlite

// Schema is the star schema for service requests: four dimension tables and
// one fact table keyed by the natural unique identifier.
const Schema = `
CREATE TABLE IF NOT EXISTS agency (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS complaint_type (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS descriptor (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS borough (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS service_requests (
	unique_key             INTEGER PRIMARY KEY,
	created_date           TEXT,
	closed_date            TEXT,
	resolution_description TEXT,
	incident_zip           TEXT,
	latitude               REAL,
	longitude              REAL,
	agency_id              INTEGER REFERENCES agency(id),
	complaint_type_id      INTEGER REFERENCES complaint_type(id),
	descriptor_id          INTEGER REFERENCES descriptor(id),
	borough_id             INTEGER REFERENCES borough(id)
);

CREATE INDEX IF NOT EXISTS idx_service_requests_created_date
	ON service_requests(created_date);
CREATE INDEX IF NOT EXISTS idx_service_requests_closed_date
	ON service_requests(closed_date);
CREATE INDEX IF NOT EXISTS idx_service_requests_complaint_type_id
	ON service_requests(complaint_type_id);
CREATE INDEX IF NOT EXISTS idx_service_requests_borough_id
	ON service_requests(borough_id);
`
