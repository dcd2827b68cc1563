package validate

// zappSchemaJSON is the structural JSON Schema a submitted ZApp
// description must satisfy before semantic checks run.
const zappSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "services"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "integer"},
    "services": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "image", "resources"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "image": {"type": "string", "minLength": 1},
          "monitor": {"type": "boolean"},
          "essential": {"type": "boolean"},
          "resources": {
            "type": "object",
            "properties": {
              "memory_min": {"type": "integer", "minimum": 0},
              "cores_min": {"type": "number", "minimum": 0}
            }
          },
          "labels": {"type": "array", "items": {"type": "string"}},
          "ports": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "port_number", "protocol", "url_template"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "port_number": {"type": "integer", "minimum": 1, "maximum": 65535},
                "protocol": {"type": "string", "enum": ["tcp", "udp"]},
                "url_template": {"type": "string", "minLength": 1}
              }
            }
          },
          "environment": {"type": "object", "additionalProperties": {"type": "string"}},
          "volumes": {"type": "array", "items": {"type": "string"}},
          "command": {"type": "array", "items": {"type": "string"}}
        }
      }
    }
  }
}`
