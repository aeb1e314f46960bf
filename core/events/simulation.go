package events

// Event is one simulation input. Time is expressed in simulation seconds.
type Event interface {
	Kind() string
	SimTime() float64
	isEvent()
}

// Event kinds as they appear in the "type" field of encoded events.
const (
	KindPersonLeavesVehicle  = "person_leaves_vehicle"
	KindActivityStart        = "activity_start"
	KindActivityEnd          = "activity_end"
	KindChargingStart        = "charging_start"
	KindChargingEnd          = "charging_end"
	KindVehicleEntersTraffic = "vehicle_enters_traffic"
	KindVehicleLeavesTraffic = "vehicle_leaves_traffic"
	KindLinkLeave            = "link_leave"
	KindEnergyUpdate         = "energy_update"
)

// PersonLeavesVehicle records which vehicle a person drove last.
type PersonLeavesVehicle struct {
	PersonID  string  `json:"person_id"`
	VehicleID string  `json:"vehicle_id"`
	Time      float64 `json:"time"`
}

// ActivityStart is emitted when a person begins a scheduled activity.
type ActivityStart struct {
	PersonID     string  `json:"person_id"`
	ActivityType string  `json:"activity_type"`
	LinkID       string  `json:"link_id"`
	Time         float64 `json:"time"`
}

// ActivityEnd is emitted when a person leaves an activity.
type ActivityEnd struct {
	PersonID     string  `json:"person_id"`
	ActivityType string  `json:"activity_type"`
	LinkID       string  `json:"link_id,omitempty"`
	Time         float64 `json:"time"`
}

// ChargingStart reports that energy started flowing into a vehicle.
type ChargingStart struct {
	ChargerID string  `json:"charger_id"`
	VehicleID string  `json:"vehicle_id"`
	Time      float64 `json:"time"`
}

// ChargingEnd reports that charging stopped, typically because the target
// state of charge was reached.
type ChargingEnd struct {
	ChargerID string  `json:"charger_id"`
	VehicleID string  `json:"vehicle_id"`
	EnergyJ   float64 `json:"energy_j"`
	Time      float64 `json:"time"`
}

// VehicleEntersTraffic marks a vehicle leaving its parking spot.
type VehicleEntersTraffic struct {
	VehicleID string  `json:"vehicle_id"`
	LinkID    string  `json:"link_id"`
	Time      float64 `json:"time"`
}

// VehicleLeavesTraffic marks a vehicle arriving at its destination.
type VehicleLeavesTraffic struct {
	VehicleID string  `json:"vehicle_id"`
	LinkID    string  `json:"link_id"`
	Time      float64 `json:"time"`
}

// LinkLeave is emitted when a vehicle finishes a road link.
type LinkLeave struct {
	VehicleID string  `json:"vehicle_id"`
	LinkID    string  `json:"link_id"`
	LengthM   float64 `json:"length_m"`
	Time      float64 `json:"time"`
}

// EnergyUpdate carries a sample from the consumption model. A negative
// EnergyJ means "derive from SoC".
type EnergyUpdate struct {
	VehicleID string  `json:"vehicle_id"`
	SoC       float64 `json:"soc"`
	EnergyJ   float64 `json:"energy_j"`
	Time      float64 `json:"time"`
}

func (PersonLeavesVehicle) Kind() string  { return KindPersonLeavesVehicle }
func (ActivityStart) Kind() string        { return KindActivityStart }
func (ActivityEnd) Kind() string          { return KindActivityEnd }
func (ChargingStart) Kind() string        { return KindChargingStart }
func (ChargingEnd) Kind() string          { return KindChargingEnd }
func (VehicleEntersTraffic) Kind() string { return KindVehicleEntersTraffic }
func (VehicleLeavesTraffic) Kind() string { return KindVehicleLeavesTraffic }
func (LinkLeave) Kind() string            { return KindLinkLeave }
func (EnergyUpdate) Kind() string         { return KindEnergyUpdate }

func (e PersonLeavesVehicle) SimTime() float64  { return e.Time }
func (e ActivityStart) SimTime() float64        { return e.Time }
func (e ActivityEnd) SimTime() float64          { return e.Time }
func (e ChargingStart) SimTime() float64        { return e.Time }
func (e ChargingEnd) SimTime() float64          { return e.Time }
func (e VehicleEntersTraffic) SimTime() float64 { return e.Time }
func (e VehicleLeavesTraffic) SimTime() float64 { return e.Time }
func (e LinkLeave) SimTime() float64            { return e.Time }
func (e EnergyUpdate) SimTime() float64         { return e.Time }

func (PersonLeavesVehicle) isEvent()  {}
func (ActivityStart) isEvent()        {}
func (ActivityEnd) isEvent()          {}
func (ChargingStart) isEvent()        {}
func (ChargingEnd) isEvent()          {}
func (VehicleEntersTraffic) isEvent() {}
func (VehicleLeavesTraffic) isEvent() {}
func (LinkLeave) isEvent()            {}
func (EnergyUpdate) isEvent()         {}
