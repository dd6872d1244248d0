package models

// allowedTransitions is the shipment status graph. Anything not listed
// here is rejected by CanTransition.
var allowedTransitions = map[string][]string{
	ShipmentCreated:           {ShipmentAssigned, ShipmentPendingAssignment, ShipmentCancelled},
	ShipmentPendingAssignment: {ShipmentAssigned, ShipmentCancelled},
	ShipmentAssigned:          {ShipmentPickedUp, ShipmentCancelled},
	ShipmentPickedUp:          {ShipmentInTransit, ShipmentDelivering, ShipmentFailed},
	ShipmentInTransit:         {ShipmentReadyForDelivery, ShipmentDelivering, ShipmentFailed},
	ShipmentReadyForDelivery:  {ShipmentDelivering, ShipmentFailed},
	ShipmentDelivering:        {ShipmentDelivered, ShipmentFailed},
	ShipmentFailed:            {ShipmentReturned, ShipmentPendingRedelivery},
	ShipmentPendingRedelivery: {ShipmentDelivering, ShipmentFailed, ShipmentReturned},
}

func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns every status from which `to` is reachable in one
// step. Used to build status-guard WHERE clauses.
func AllowedFrom(to string) []string {
	var out []string
	for from, nexts := range allowedTransitions {
		for _, next := range nexts {
			if next == to {
				out = append(out, from)
				break
			}
		}
	}
	return out
}
