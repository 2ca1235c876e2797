package refs

import "github.com/md-rashed-zaman/propertyhub/libs/refsync"

// OrganizationSchema is the shape of one organization snapshot item, whether pulled from
// the snapshot endpoint or carried as event data.
const OrganizationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "tenant_id", "version", "updated_at", "name", "status"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "tenant_id": {"type": "string", "minLength": 1},
    "version": {"type": "integer", "minimum": 1},
    "is_deleted": {"type": "boolean"},
    "updated_at": {"type": "string", "format": "date-time"},
    "name": {"type": "string"},
    "slug": {"type": "string"},
    "status": {"enum": ["initializing", "active", "suspended", "deleted"]}
  }
}`

func NewOrganizationValidator() (*refsync.Validator, error) {
	return refsync.NewValidator("organization", OrganizationSchema)
}
