package statusreducer

import (
	"fmt"

	"github.com/stackl-io/stackl-core/internal/catalog"
	"github.com/stackl-io/stackl-core/internal/channel"
)

// DecodeReport extracts a StatusReport from an inbound status-topic
// envelope's payload.
func DecodeReport(env channel.Envelope) (StatusReport, error) {
	instanceName, _ := env.Payload["instance_name"].(string)
	serviceName, _ := env.Payload["service_name"].(string)
	fr, _ := env.Payload["functional_requirement"].(string)
	status, _ := env.Payload["status"].(string)
	errMsg, _ := env.Payload["error_message"].(string)
	action, _ := env.Payload["action"].(string)

	if instanceName == "" || serviceName == "" || fr == "" || status == "" {
		return StatusReport{}, fmt.Errorf("status report envelope missing required field: %+v", env.Payload)
	}

	return StatusReport{
		InstanceName:          instanceName,
		ServiceName:           serviceName,
		FunctionalRequirement: fr,
		Status:                catalog.Status(status),
		ErrorMessage:          errMsg,
		Action:                action,
	}, nil
}
