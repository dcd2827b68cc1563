package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoe-analytics/zoe/pkg/apperr"
)

func kindOf(t *testing.T, err error) apperr.Kind {
	t.Helper()
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	return appErr.Kind
}

func TestZAppAcceptsWellFormedDescription(t *testing.T) {
	raw := []byte(`{
		"name": "wordcount",
		"version": 1,
		"services": [
			{
				"name": "master",
				"image": "zoe/spark-master:2.4",
				"essential": true,
				"resources": {"memory_min": 1073741824, "cores_min": 1},
				"ports": [{"name": "web-ui", "port_number": 8080, "protocol": "tcp", "url_template": "http://{ip_port}/"}]
			},
			{
				"name": "worker",
				"image": "zoe/spark-worker:2.4",
				"essential": false,
				"resources": {"memory_min": 2147483648, "cores_min": 2}
			}
		]
	}`)

	app, err := ZApp(raw)
	require.NoError(t, err)
	assert.Equal(t, "wordcount", app.Name)
	assert.Len(t, app.Services, 2)
}

func TestZAppRejectsMalformedJSON(t *testing.T) {
	_, err := ZApp([]byte(`not json`))
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidDescription, kindOf(t, err))
}

func TestZAppRejectsMissingRequiredFields(t *testing.T) {
	_, err := ZApp([]byte(`{"name": "x", "services": [{"name": "svc"}]}`))
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidDescription, kindOf(t, err))
}

func TestZAppRejectsNoEssentialService(t *testing.T) {
	raw := []byte(`{
		"name": "x",
		"services": [
			{"name": "a", "image": "img", "essential": false, "resources": {"memory_min": 1, "cores_min": 1}}
		]
	}`)
	_, err := ZApp(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "essential")
}

func TestZAppRejectsDuplicateServiceNames(t *testing.T) {
	raw := []byte(`{
		"name": "x",
		"services": [
			{"name": "a", "image": "img", "essential": true, "resources": {"memory_min": 1, "cores_min": 1}},
			{"name": "a", "image": "img", "essential": false, "resources": {"memory_min": 1, "cores_min": 1}}
		]
	}`)
	_, err := ZApp(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate service name")
}

func TestZAppRejectsDuplicatePortNumbers(t *testing.T) {
	raw := []byte(`{
		"name": "x",
		"services": [
			{
				"name": "a", "image": "img", "essential": true,
				"resources": {"memory_min": 1, "cores_min": 1},
				"ports": [
					{"name": "p1", "port_number": 80, "protocol": "tcp", "url_template": "http://{ip_port}/"},
					{"name": "p2", "port_number": 80, "protocol": "tcp", "url_template": "http://{ip_port}/"}
				]
			}
		]
	}`)
	_, err := ZApp(raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate port")
}

func TestZAppRejectsEmptyServiceList(t *testing.T) {
	_, err := ZApp([]byte(`{"name": "x", "services": []}`))
	require.Error(t, err)
	assert.Equal(t, apperr.InvalidDescription, kindOf(t, err))
}
